package clipboard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// WriterSurface prints the payload between markers so it can be selected from
// scrollback. With Dir set, the payload is also saved to a file there.
type WriterSurface struct {
	Out io.Writer
	Dir string

	mu sync.Mutex
}

func NewWriterSurface(out io.Writer, dir string) *WriterSurface {
	return &WriterSurface{Out: out, Dir: dir}
}

func (w *WriterSurface) Show(ctx context.Context, m Manual) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rule := strings.Repeat("-", 60)
	if _, err := fmt.Fprintf(w.Out, "%s\nCould not copy automatically. Please copy manually:\n%s\n%s\n%s\n",
		rule, rule, m.Payload, rule); err != nil {
		return err
	}

	if w.Dir == "" {
		return nil
	}
	path, err := SaveManual(w.Dir, m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.Out, "Saved to %s\n", path)
	return err
}

// SaveManual writes the payload to dir and returns the file path.
func SaveManual(dir string, m Manual) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create manual copy dir: %w", err)
	}
	path := filepath.Join(dir, "copy-"+m.AttemptID+".txt")
	if err := os.WriteFile(path, []byte(m.Payload), 0o600); err != nil {
		return "", fmt.Errorf("save manual copy: %w", err)
	}
	return path, nil
}
