// Package tui is the terminal dashboard. It renders the live desk snapshot,
// the polled resources and the clipboard status, and hosts the manual-copy
// modal. The model only reads state; all I/O runs in tea commands.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"deskwatch/internal/clipboard"
	"deskwatch/internal/desk"
)

const (
	refreshInterval = 250 * time.Millisecond
	copyTimeout     = 15 * time.Second
)

// Copier is satisfied by *clipboard.Service.
type Copier interface {
	Copy(ctx context.Context, getPayload func(ctx context.Context) (string, error)) clipboard.Result
	Status() clipboard.Status
	Dismiss(attemptID string)
}

// Reports is satisfied by *api.Client.
type Reports interface {
	CopySnapshot(ctx context.Context, compact bool) (string, error)
	CopyClaudeContext(ctx context.Context) (string, error)
	CopyPositions(ctx context.Context) (string, error)
}

// Poller is satisfied by *poll.Refresher.
type Poller interface {
	Name() string
	Interval() time.Duration
	Last() (any, time.Time, error)
}

// Config wires the model to the running components.
type Config struct {
	Events  <-chan desk.Event
	Manuals <-chan clipboard.Manual
	Copier  Copier
	Reports Reports
	Pollers []Poller
	// Cached is shown, marked stale, until the first live snapshot arrives.
	Cached *desk.Snapshot
	Now    func() time.Time
}

type (
	eventMsg   desk.Event
	manualMsg  clipboard.Manual
	copyMsg    clipboard.Result
	refreshMsg time.Time
)

// Model is the bubbletea model of the dashboard.
type Model struct {
	cfg    Config
	styles styles
	now    time.Time

	width, height int

	state     desk.State
	connected bool
	snapshot  *desk.Snapshot
	stale     bool

	status  clipboard.Status
	copying bool
	last    *clipboard.Result

	manual   *clipboard.Manual
	viewport viewport.Model
}

func New(cfg Config) *Model {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Model{
		cfg:      cfg,
		styles:   newStyles(),
		now:      cfg.Now(),
		snapshot: cfg.Cached,
		stale:    cfg.Cached != nil,
		width:    100,
		height:   30,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.waitForManual(), refreshTick())
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.cfg.Events == nil {
		return nil
	}
	ch := m.cfg.Events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) waitForManual() tea.Cmd {
	if m.cfg.Manuals == nil {
		return nil
	}
	ch := m.cfg.Manuals
	return func() tea.Msg {
		mm, ok := <-ch
		if !ok {
			return nil
		}
		return manualMsg(mm)
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.manual != nil {
			m.viewport.Width, m.viewport.Height = m.modalSize()
		}
		return m, nil

	case eventMsg:
		m.state = msg.State
		m.connected = msg.Connected
		if msg.Snapshot != nil {
			m.snapshot = msg.Snapshot
			m.stale = false
		}
		return m, m.waitForEvent()

	case manualMsg:
		mm := clipboard.Manual(msg)
		m.openManual(mm)
		return m, m.waitForManual()

	case copyMsg:
		res := clipboard.Result(msg)
		m.copying = false
		m.last = &res
		m.syncStatus()
		return m, nil

	case refreshMsg:
		m.now = m.cfg.Now()
		m.syncStatus()
		return m, refreshTick()

	case tea.KeyMsg:
		if m.manual != nil {
			return m.updateManual(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) syncStatus() {
	if m.cfg.Copier != nil {
		m.status = m.cfg.Copier.Status()
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c":
		return m, m.copy(func(ctx context.Context) (string, error) {
			return m.cfg.Reports.CopySnapshot(ctx, false)
		})
	case "C":
		return m, m.copy(func(ctx context.Context) (string, error) {
			return m.cfg.Reports.CopySnapshot(ctx, true)
		})
	case "x":
		return m, m.copy(func(ctx context.Context) (string, error) {
			return m.cfg.Reports.CopyClaudeContext(ctx)
		})
	case "p":
		return m, m.copy(func(ctx context.Context) (string, error) {
			return m.cfg.Reports.CopyPositions(ctx)
		})
	}
	return m, nil
}

// copy starts one clipboard attempt. Keys pressed while an attempt is still
// producing its payload are ignored.
func (m *Model) copy(get func(ctx context.Context) (string, error)) tea.Cmd {
	if m.copying || m.cfg.Copier == nil || m.cfg.Reports == nil {
		return nil
	}
	m.copying = true
	copier := m.cfg.Copier
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), copyTimeout)
		defer cancel()
		return copyMsg(copier.Copy(ctx, get))
	}
}

func (m *Model) modalSize() (int, int) {
	w, h := m.width-6, m.height-8
	if w < 20 {
		w = 20
	}
	if h < 3 {
		h = 3
	}
	return w, h
}

func (m *Model) openManual(mm clipboard.Manual) {
	m.manual = &mm
	w, h := m.modalSize()
	m.viewport = viewport.New(w, h)
	m.viewport.SetContent(mm.Payload)
}

func (m *Model) closeManual() {
	if m.manual == nil {
		return
	}
	if m.cfg.Copier != nil {
		m.cfg.Copier.Dismiss(m.manual.AttemptID)
	}
	m.manual = nil
	m.syncStatus()
}

func (m *Model) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "enter":
		m.closeManual()
		return m, nil
	case "a":
		// Select all: print the raw payload above the dashboard so the
		// terminal's own selection can take it in one drag.
		payload := m.manual.Payload
		m.closeManual()
		return m, tea.Println(payload)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// ManualOpen reports whether the manual-copy modal is showing.
func (m *Model) ManualOpen() bool { return m.manual != nil }
