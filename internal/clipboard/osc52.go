package clipboard

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// DefaultOSC52Limit is the largest encoded sequence most terminals accept.
const DefaultOSC52Limit = 100_000

// Terminal is the controlling terminal the escape sequence is written to.
type Terminal interface {
	io.Writer
	Fd() uintptr
	Close() error
}

// OSC52Strategy asks the terminal emulator to set its selection with an
// OSC 52 escape sequence. It works over SSH and inside tmux.
type OSC52Strategy struct {
	// Limit caps the encoded payload size; zero means DefaultOSC52Limit.
	Limit int
	// Tmux additionally wraps the sequence for tmux passthrough.
	Tmux bool

	open    func() (Terminal, error)
	makeRaw func(fd int) (*term.State, error)
	restore func(fd int, state *term.State) error
}

func NewOSC52Strategy() *OSC52Strategy {
	return &OSC52Strategy{
		Tmux:    inTmux(os.Getenv),
		open:    openTTY,
		makeRaw: term.MakeRaw,
		restore: term.Restore,
	}
}

// inTmux reports a local tmux session or one forwarded over SSH.
func inTmux(getenv func(string) string) bool {
	termName := getenv("TERM")
	return getenv("TMUX") != "" || strings.HasPrefix(termName, "tmux") || strings.HasPrefix(termName, "screen")
}

func openTTY() (Terminal, error) {
	f, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		f.Close()
		return nil, ErrUnavailable
	}
	return f, nil
}

func (o *OSC52Strategy) Name() string { return "osc52" }

// Copy writes the sequence with the terminal in raw mode so line discipline
// does not mangle it. The prior mode is restored whatever the outcome.
func (o *OSC52Strategy) Copy(ctx context.Context, text string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	seq := o.sequence(text)
	limit := o.Limit
	if limit <= 0 {
		limit = DefaultOSC52Limit
	}
	if len(seq) > limit {
		return fmt.Errorf("osc52: payload of %d bytes exceeds terminal limit", len(text))
	}

	tty, err := o.open()
	if err != nil {
		return fmt.Errorf("osc52: open terminal: %w", err)
	}
	defer tty.Close()

	fd := int(tty.Fd())
	state, err := o.makeRaw(fd)
	if err != nil {
		return fmt.Errorf("osc52: raw mode: %w", err)
	}
	defer func() {
		if rerr := o.restore(fd, state); rerr != nil && err == nil {
			err = fmt.Errorf("osc52: restore terminal: %w", rerr)
		}
	}()

	if _, err := tty.Write([]byte(seq)); err != nil {
		return fmt.Errorf("osc52: write: %w", err)
	}
	return nil
}

func (o *OSC52Strategy) sequence(text string) string {
	var b strings.Builder
	b.WriteString("\x1b]52;c;")
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(text)))
	b.WriteString("\a")
	if !o.Tmux {
		return b.String()
	}
	// Passthrough covers allow-passthrough setups, the bare sequence covers
	// set-clipboard. Setting the clipboard twice is harmless.
	return "\x1bPtmux;\x1b" + b.String() + "\x1b\\" + b.String()
}
