package deskserver

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Position is one open position on the simulated desk.
type Position struct {
	Symbol        string  `json:"symbol"`
	BotName       string  `json:"bot_name"`
	Side          string  `json:"side"`
	Qty           float64 `json:"qty"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	UnrealizedPct float64 `json:"unrealized_pnl_pct"`
}

// Bot is one strategy process.
type Bot struct {
	Name          string   `json:"name"`
	PID           int      `json:"pid"`
	Status        string   `json:"status"`
	Symbols       []string `json:"symbols"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// Event is one entry of the desk activity feed.
type Event struct {
	Timestamp string  `json:"timestamp"`
	BotName   string  `json:"bot_name"`
	Action    string  `json:"action"`
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
	PnL       float64 `json:"pnl,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Desk is an in-memory desk whose prices drift on every Tick.
type Desk struct {
	mu        sync.RWMutex
	rng       *rand.Rand
	started   time.Time
	now       func() time.Time
	realized  float64
	capital   float64
	positions []Position
	bots      []Bot
	events    []Event
}

// NewDesk seeds a desk with a few bots and positions. The same seed yields the
// same price path.
func NewDesk(seed uint64, now func() time.Time) *Desk {
	if now == nil {
		now = time.Now
	}
	d := &Desk{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		started: now(),
		now:     now,
		capital: 25000,
		bots: []Bot{
			{Name: "orb_nvda", PID: 41021, Status: "running", Symbols: []string{"NVDA"}},
			{Name: "momo_equity", PID: 41022, Status: "running", Symbols: []string{"TSLA", "AMD"}},
			{Name: "spx_0dte", PID: 41023, Status: "running", Symbols: []string{"SPX"}},
			{Name: "crypto_grid", PID: 41024, Status: "stopped", Symbols: []string{"BTC", "ETH"}},
		},
		positions: []Position{
			{Symbol: "NVDA", BotName: "orb_nvda", Side: "LONG", Qty: 40, EntryPrice: 121.40, CurrentPrice: 121.40},
			{Symbol: "TSLA", BotName: "momo_equity", Side: "SHORT", Qty: 15, EntryPrice: 248.10, CurrentPrice: 248.10},
			{Symbol: "AMD", BotName: "momo_equity", Side: "LONG", Qty: 30, EntryPrice: 158.75, CurrentPrice: 158.75},
		},
	}
	for _, p := range d.positions {
		d.appendEventLocked(Event{BotName: p.BotName, Action: "OPEN", Symbol: p.Symbol, Qty: p.Qty, Price: p.EntryPrice, Reason: "entry signal"})
	}
	return d
}

// Tick moves every price by a small random step.
func (d *Desk) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.positions {
		p := &d.positions[i]
		step := d.rng.NormFloat64() * 0.002 * p.CurrentPrice
		p.CurrentPrice = math.Max(0.01, round2(p.CurrentPrice+step))
		d.markLocked(p)
	}
}

// Close realizes the position in symbol. It reports whether one was open.
func (d *Desk) Close(symbol, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, p := range d.positions {
		if p.Symbol != symbol {
			continue
		}
		d.realized += p.UnrealizedPnL
		d.positions = append(d.positions[:i], d.positions[i+1:]...)
		d.appendEventLocked(Event{BotName: p.BotName, Action: "CLOSE", Symbol: p.Symbol, Qty: p.Qty, Price: p.CurrentPrice, PnL: p.UnrealizedPnL, Reason: reason})
		return true
	}
	return false
}

func (d *Desk) markLocked(p *Position) {
	diff := p.CurrentPrice - p.EntryPrice
	if p.Side == "SHORT" {
		diff = -diff
	}
	p.UnrealizedPnL = round2(diff * p.Qty)
	p.UnrealizedPct = round2(diff / p.EntryPrice * 100)
}

func (d *Desk) appendEventLocked(e Event) {
	e.Timestamp = d.now().Format("2006-01-02 15:04:05") + " ET"
	d.events = append(d.events, e)
	if len(d.events) > 200 {
		d.events = d.events[len(d.events)-200:]
	}
}

func (d *Desk) unrealizedLocked() float64 {
	total := 0.0
	for _, p := range d.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// DailyPnL returns the daily_pnl section.
func (d *Desk) DailyPnL() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dailyPnLLocked()
}

func (d *Desk) dailyPnLLocked() map[string]any {
	pnl := round2(d.realized + d.unrealizedLocked())
	return map[string]any{
		"daily_pnl":      pnl,
		"daily_pnl_pct":  round2(pnl / d.capital * 100),
		"realized_pnl":   round2(d.realized),
		"unrealized_pnl": round2(d.unrealizedLocked()),
	}
}

// Positions returns a copy of the open positions.
func (d *Desk) Positions() []Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Position(nil), d.positions...)
}

// Bots returns the bots with their uptime filled in.
func (d *Desk) Bots() []Bot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.botsLocked()
}

func (d *Desk) botsLocked() []Bot {
	up := int64(d.now().Sub(d.started).Seconds())
	out := make([]Bot, len(d.bots))
	for i, b := range d.bots {
		b.Symbols = append([]string(nil), b.Symbols...)
		if b.Status == "running" {
			b.UptimeSeconds = up
		}
		out[i] = b
	}
	return out
}

// Events returns up to limit events, newest first.
func (d *Desk) Events(limit int) []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.eventsLocked(limit)
}

func (d *Desk) eventsLocked(limit int) []Event {
	if limit <= 0 || limit > len(d.events) {
		limit = len(d.events)
	}
	out := make([]Event, 0, limit)
	for i := len(d.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, d.events[i])
	}
	return out
}

// Snapshot returns the full desk snapshot as sent on the push channel.
func (d *Desk) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	running := 0
	for _, b := range d.bots {
		if b.Status == "running" {
			running++
		}
	}
	return map[string]any{
		"positions": append([]Position(nil), d.positions...),
		"bots":      d.botsLocked(),
		"events":    d.eventsLocked(50),
		"daily_pnl": d.dailyPnLLocked(),
		"summary": map[string]any{
			"total_positions": len(d.positions),
			"running_bots":    running,
			"total_bots":      len(d.bots),
		},
		"timestamp": d.now().UTC().Format(time.RFC3339),
	}
}

// SnapshotText renders the desk as a plain-text report.
func (d *Desk) SnapshotText(compact bool) string {
	pnl := d.DailyPnL()
	positions := d.Positions()

	var b strings.Builder
	fmt.Fprintf(&b, "DESK SNAPSHOT %s\n", d.now().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Daily P&L: %s (%+.2f%%)\n", money(pnl["daily_pnl"].(float64)), pnl["daily_pnl_pct"].(float64))
	fmt.Fprintf(&b, "Positions: %d\n", len(positions))
	if compact {
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(d.PositionsText())
	b.WriteString("\nBots:\n")
	for _, bot := range d.Bots() {
		fmt.Fprintf(&b, "  %-12s %-8s %s\n", bot.Name, bot.Status, strings.Join(bot.Symbols, ","))
	}
	return b.String()
}

// PositionsText renders the open positions as a table.
func (d *Desk) PositionsText() string {
	positions := d.Positions()
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-5s %8s %10s %10s %12s\n", "SYM", "SIDE", "QTY", "ENTRY", "LAST", "UNREAL")
	for _, p := range positions {
		fmt.Fprintf(&b, "%-6s %-5s %8s %10.2f %10.2f %12s\n",
			p.Symbol, p.Side, humanize.Ftoa(p.Qty), p.EntryPrice, p.CurrentPrice, money(p.UnrealizedPnL))
	}
	return b.String()
}

// ContextText renders the report meant for pasting into an assistant.
func (d *Desk) ContextText() string {
	var b strings.Builder
	b.WriteString("You are reviewing a live trading desk. Current state follows.\n\n")
	b.WriteString(d.SnapshotText(false))
	b.WriteString("\nRecent events:\n")
	for _, e := range d.Events(10) {
		fmt.Fprintf(&b, "  %s %s %s %s @ %.2f\n", e.Timestamp, e.BotName, e.Action, e.Symbol, e.Price)
	}
	return b.String()
}

func money(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	} else if v > 0 {
		sign = "+"
	}
	cents := int64(math.Round(v * 100))
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
