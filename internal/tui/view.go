package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"deskwatch/internal/clipboard"
	"deskwatch/internal/desk"
)

const maxEvents = 6

func (m *Model) View() string {
	if m.manual != nil {
		return m.manualView()
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	if m.snapshot == nil {
		b.WriteString(m.styles.muted.Render("Waiting for desk snapshot..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.styles.panel.Render(m.positionsView()))
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			m.styles.panel.Render(m.botsView()),
			m.styles.panel.Render(m.eventsView()),
		))
		b.WriteString("\n")
	}
	if len(m.cfg.Pollers) > 0 {
		b.WriteString(m.styles.panel.Render(m.pollsView()))
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("c copy snapshot · C compact · x copy context · p copy positions · q quit"))
	return b.String()
}

func (m *Model) header() string {
	badge := m.styles.offline.Render("● OFFLINE")
	if m.connected {
		badge = m.styles.live.Render("● LIVE")
	} else if m.state == desk.StateConnecting {
		badge = m.styles.stale.Render("● CONNECTING")
	}

	parts := []string{m.styles.title.Render("DESKWATCH"), badge}
	if m.snapshot != nil {
		pnl, _ := m.snapshot.Float("daily_pnl", "daily_pnl")
		pct, _ := m.snapshot.Float("daily_pnl", "daily_pnl_pct")
		parts = append(parts, "Daily P&L "+m.signed(pnl, fmt.Sprintf("%s (%+.2f%%)", money(pnl), pct)))

		positions := len(m.snapshot.List("positions"))
		if n, ok := m.snapshot.Float("summary", "total_positions"); ok {
			positions = int(n)
		}
		running, _ := m.snapshot.Float("summary", "running_bots")
		total, ok := m.snapshot.Float("summary", "total_bots")
		if !ok {
			total = float64(len(m.snapshot.List("bots")))
		}
		parts = append(parts,
			m.styles.label.Render("Positions ")+fmt.Sprint(positions),
			m.styles.label.Render("Bots ")+fmt.Sprintf("%d/%d", int(running), int(total)))
	}
	if m.stale && m.snapshot != nil {
		parts = append(parts, m.styles.stale.Render("cached "+humanize.RelTime(m.snapshot.ReceivedAt, m.now, "ago", "from now")))
	}
	return strings.Join(parts, "   ")
}

func (m *Model) signed(v float64, text string) string {
	switch {
	case v > 0:
		return m.styles.gain.Render(text)
	case v < 0:
		return m.styles.loss.Render(text)
	default:
		return text
	}
}

func (m *Model) positionsView() string {
	var b strings.Builder
	b.WriteString(m.styles.label.Render(fmt.Sprintf("%-7s %-5s %8s %10s %10s %12s %8s", "SYMBOL", "SIDE", "QTY", "ENTRY", "LAST", "UNREAL", "%")))
	rows := m.snapshot.List("positions")
	if len(rows) == 0 {
		b.WriteString("\n" + m.styles.muted.Render("No open positions"))
	}
	for _, row := range rows {
		p, ok := row.(map[string]any)
		if !ok {
			continue
		}
		pnl := num(p["unrealized_pnl"])
		line := fmt.Sprintf("%-7s %-5s %8s %10.2f %10.2f %12s %7.2f%%",
			str(p["symbol"]), str(p["side"]), humanize.Ftoa(num(p["qty"])),
			num(p["entry_price"]), num(p["current_price"]), money(pnl), num(p["unrealized_pnl_pct"]))
		b.WriteString("\n" + m.signed(pnl, line))
	}
	return b.String()
}

func (m *Model) botsView() string {
	var b strings.Builder
	b.WriteString(m.styles.label.Render("BOTS"))
	for _, row := range m.snapshot.List("bots") {
		bot, ok := row.(map[string]any)
		if !ok {
			continue
		}
		status := str(bot["status"])
		style := m.styles.muted
		if status == "running" {
			style = m.styles.gain
		}
		uptime := ""
		if secs := num(bot["uptime_seconds"]); secs > 0 {
			uptime = (time.Duration(secs) * time.Second).Truncate(time.Minute).String()
		}
		b.WriteString(fmt.Sprintf("\n%-12s %s %s", str(bot["name"]), style.Render(fmt.Sprintf("%-8s", status)), m.styles.muted.Render(uptime)))
	}
	return b.String()
}

func (m *Model) eventsView() string {
	var b strings.Builder
	b.WriteString(m.styles.label.Render("EVENTS"))
	events := m.snapshot.List("events")
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	for _, row := range events {
		e, ok := row.(map[string]any)
		if !ok {
			continue
		}
		line := fmt.Sprintf("%-8s %-12s %-5s %-5s @ %.2f",
			desk.FormatTradeTime(str(e["timestamp"]), nil), str(e["bot_name"]), str(e["action"]), str(e["symbol"]), num(e["price"]))
		if pnl, ok := e["pnl"].(float64); ok && pnl != 0 {
			line += " " + m.signed(pnl, money(pnl))
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

func (m *Model) pollsView() string {
	pollers := append([]Poller(nil), m.cfg.Pollers...)
	sort.Slice(pollers, func(i, j int) bool { return pollers[i].Name() < pollers[j].Name() })

	var b strings.Builder
	b.WriteString(m.styles.label.Render("POLLED"))
	for _, p := range pollers {
		_, at, err := p.Last()
		age := m.styles.muted.Render("pending")
		if !at.IsZero() {
			text := humanize.RelTime(at, m.now, "ago", "from now")
			if m.now.Sub(at) > 2*p.Interval() {
				age = m.styles.stale.Render(text)
			} else {
				age = text
			}
		}
		line := fmt.Sprintf("\n%-16s every %-6s %s", p.Name(), p.Interval(), age)
		if err != nil {
			line += " " + m.styles.warn.Render("("+err.Error()+")")
		}
		b.WriteString(line)
	}
	return b.String()
}

func (m *Model) statusLine() string {
	if m.copying && m.status.State != clipboard.ManualSurfaceShown {
		return m.styles.muted.Render("Copying...")
	}
	switch m.status.State {
	case clipboard.Succeeded:
		return m.styles.gain.Render("✓ " + m.status.Message)
	case clipboard.Failed:
		return m.styles.loss.Render("✗ " + m.status.Message)
	case clipboard.ManualSurfaceShown:
		return m.styles.warn.Render(m.status.Message)
	}
	return ""
}

func (m *Model) manualView() string {
	title := m.styles.title.Render("Could not copy automatically. Please copy manually:")
	help := m.styles.help.Render("a select all · ↑/↓ scroll · esc close")
	size := m.styles.muted.Render(humanize.Bytes(uint64(len(m.manual.Payload))))
	body := lipgloss.JoinVertical(lipgloss.Left, title, "", m.viewport.View(), "", size+"  "+help)
	return m.styles.modal.Render(body)
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

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
