package tui

import (
	"context"

	"deskwatch/internal/clipboard"
)

// Surface hands manual-copy payloads to the running dashboard, which shows
// them in a scrollable modal.
type Surface struct {
	ch chan clipboard.Manual
}

func NewSurface() *Surface {
	return &Surface{ch: make(chan clipboard.Manual, 1)}
}

// Show queues m for the dashboard. It blocks while an earlier payload is
// still waiting to be picked up.
func (s *Surface) Show(ctx context.Context, m clipboard.Manual) error {
	select {
	case s.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manuals is read by the dashboard model.
func (s *Surface) Manuals() <-chan clipboard.Manual { return s.ch }
