// Package clipboard copies generated text to the system clipboard through a
// cascade of strategies ordered by reliability. When every automatic strategy
// fails or is skipped, the payload is handed to a manual-copy Surface so the
// user can always get at the data.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"deskwatch/internal/common"
)

var (
	// ErrPayloadUnavailable wraps a failure of the payload producer.
	ErrPayloadUnavailable = errors.New("clipboard: payload unavailable")
	// ErrNoData is reported when the producer returned an empty payload.
	ErrNoData = errors.New("clipboard: no data")
	// ErrUnavailable marks a strategy that was not attempted in this environment.
	ErrUnavailable = errors.New("clipboard: strategy unavailable")
)

// State is the displayed state of the current copy attempt.
type State int

const (
	Idle State = iota
	Pending
	Succeeded
	Failed
	ManualSurfaceShown
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case ManualSurfaceShown:
		return "manual_surface_shown"
	default:
		return "idle"
	}
}

// Strategy is one automatic way of getting text onto the clipboard.
type Strategy interface {
	Name() string
	Copy(ctx context.Context, text string) error
}

// Manual is what a Surface presents to the user.
type Manual struct {
	AttemptID string
	Payload   string
}

// Surface is the terminal fallback. It must show the full payload.
type Surface interface {
	Show(ctx context.Context, m Manual) error
}

// StrategyError records why one strategy did not succeed.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e StrategyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e StrategyError) Unwrap() error { return e.Err }

// Result is the single outcome of one Copy call.
type Result struct {
	AttemptID string
	Outcome   State
	// Strategy names the mechanism that delivered the payload.
	Strategy string
	// Err is set for Failed outcomes.
	Err error
	// Attempts lists every strategy that failed or was skipped, in order.
	Attempts []StrategyError
}

// Status is what a view displays for the latest attempt.
type Status struct {
	AttemptID string
	State     State
	Message   string
	Err       error
}

// MetricsInterface defines the metrics the service reports.
type MetricsInterface interface {
	ClipboardOutcomeInc(outcome string)
	ClipboardStrategyFailureInc(strategy string)
}

type nopMetrics struct{}

func (nopMetrics) ClipboardOutcomeInc(string)         {}
func (nopMetrics) ClipboardStrategyFailureInc(string) {}

type Options struct {
	Capabilities Capabilities
	// Native is tried only when Capabilities.HasSecureClipboard is set.
	Native Strategy
	// Legacy is tried after Native.
	Legacy  Strategy
	Surface Surface

	Clock          common.Clock
	SuccessDisplay time.Duration
	FailureDisplay time.Duration
	Metrics        MetricsInterface
	// OnStatus is called after every status change, outside the service lock.
	OnStatus func(Status)
}

// Service runs copy attempts. Attempts are not cancellable; a newer attempt
// supersedes the displayed status of an older one.
type Service struct {
	caps           Capabilities
	native         Strategy
	legacy         Strategy
	surface        Surface
	clock          common.Clock
	successDisplay time.Duration
	failureDisplay time.Duration
	metrics        MetricsInterface
	onStatus       func(Status)

	mu     sync.Mutex
	status Status
	timer  clock.Timer
}

func NewService(opts Options) *Service {
	if opts.SuccessDisplay <= 0 {
		opts.SuccessDisplay = common.DefaultClipboardSuccessDisplay
	}
	if opts.FailureDisplay <= 0 {
		opts.FailureDisplay = common.DefaultClipboardFailureDisplay
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Service{
		caps:           opts.Capabilities,
		native:         opts.Native,
		legacy:         opts.Legacy,
		surface:        opts.Surface,
		clock:          common.OrRealClock(opts.Clock),
		successDisplay: opts.SuccessDisplay,
		failureDisplay: opts.FailureDisplay,
		metrics:        opts.Metrics,
		onStatus:       opts.OnStatus,
	}
}

// Capabilities returns the environment the service was configured for.
func (s *Service) Capabilities() Capabilities { return s.caps }

// Copy produces the payload and pushes it through the cascade. It always
// returns exactly one of Succeeded, Failed or ManualSurfaceShown.
func (s *Service) Copy(ctx context.Context, getPayload func(ctx context.Context) (string, error)) Result {
	res := Result{AttemptID: uuid.NewString()}
	s.setStatus(Status{AttemptID: res.AttemptID, State: Pending}, 0)

	payload, err := getPayload(ctx)
	switch {
	case err != nil:
		res.Err = fmt.Errorf("%w: %w", ErrPayloadUnavailable, err)
		return s.fail(res, "Failed to get data")
	case payload == "":
		res.Err = ErrNoData
		return s.fail(res, "No data")
	}

	if s.caps.IsTouchPlatform {
		log.Debug().Str("attempt", res.AttemptID).Msg("Touch platform, going straight to manual copy")
		return s.manual(ctx, res, payload)
	}

	for _, step := range []struct {
		name     string
		strategy Strategy
		usable   bool
	}{
		{"native", s.native, s.caps.HasSecureClipboard},
		{"legacy", s.legacy, true},
	} {
		if step.strategy == nil || !step.usable {
			res.Attempts = append(res.Attempts, StrategyError{Strategy: step.name, Err: ErrUnavailable})
			continue
		}
		if err := step.strategy.Copy(ctx, payload); err != nil {
			log.Warn().Err(err).Str("strategy", step.strategy.Name()).Str("attempt", res.AttemptID).Msg("Clipboard strategy failed")
			s.metrics.ClipboardStrategyFailureInc(step.name)
			res.Attempts = append(res.Attempts, StrategyError{Strategy: step.name, Err: err})
			continue
		}
		res.Outcome = Succeeded
		res.Strategy = step.strategy.Name()
		s.metrics.ClipboardOutcomeInc(Succeeded.String())
		log.Info().Str("strategy", res.Strategy).Int("bytes", len(payload)).Msg("Copied to clipboard")
		s.setStatus(Status{AttemptID: res.AttemptID, State: Succeeded, Message: "Copied!"}, s.successDisplay)
		return res
	}

	return s.manual(ctx, res, payload)
}

func (s *Service) fail(res Result, msg string) Result {
	res.Outcome = Failed
	s.metrics.ClipboardOutcomeInc(Failed.String())
	log.Warn().Err(res.Err).Str("attempt", res.AttemptID).Msg("Copy aborted")
	s.setStatus(Status{AttemptID: res.AttemptID, State: Failed, Message: msg, Err: res.Err}, s.failureDisplay)
	return res
}

func (s *Service) manual(ctx context.Context, res Result, payload string) Result {
	res.Outcome = ManualSurfaceShown
	res.Strategy = "manual"
	s.metrics.ClipboardOutcomeInc(ManualSurfaceShown.String())
	s.setStatus(Status{AttemptID: res.AttemptID, State: ManualSurfaceShown, Message: "Copy manually"}, 0)

	if s.surface == nil {
		log.Error().Str("attempt", res.AttemptID).Msg("No manual copy surface configured")
		return res
	}
	if err := s.surface.Show(ctx, Manual{AttemptID: res.AttemptID, Payload: payload}); err != nil {
		log.Error().Err(err).Str("attempt", res.AttemptID).Msg("Manual copy surface failed")
	}
	return res
}

// Dismiss clears a ManualSurfaceShown status once the user closes the surface.
// Statuses from other attempts are left alone.
func (s *Service) Dismiss(attemptID string) {
	s.mu.Lock()
	if s.status.AttemptID != attemptID || s.status.State != ManualSurfaceShown {
		s.mu.Unlock()
		return
	}
	s.status = Status{}
	cb := s.onStatus
	s.mu.Unlock()

	if cb != nil {
		cb(Status{})
	}
}

// Status returns the currently displayed status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// setStatus replaces the displayed status and arms an auto-clear timer when
// display is positive. Any earlier timer is cancelled.
func (s *Service) setStatus(st Status, display time.Duration) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.status = st
	if display > 0 {
		id := st.AttemptID
		s.timer = s.clock.AfterFunc(display, func() {
			go s.clear(id)
		})
	}
	cb := s.onStatus
	s.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

func (s *Service) clear(attemptID string) {
	s.mu.Lock()
	if s.status.AttemptID != attemptID {
		s.mu.Unlock()
		return
	}
	s.status = Status{}
	s.timer = nil
	cb := s.onStatus
	s.mu.Unlock()

	if cb != nil {
		cb(Status{})
	}
}
