package metrics

import "time"

// MetricsWrapper adapts Metrics to the small interfaces the desk, poll and
// clipboard packages declare, so those packages never import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Push channel

func (w *MetricsWrapper) ReconnectsInc() { w.m.Reconnects.Inc() }

func (w *MetricsWrapper) ConnectionOpenSet(open bool) {
	if open {
		w.m.ConnectionOpen.Set(1)
		return
	}
	w.m.ConnectionOpen.Set(0)
}

func (w *MetricsWrapper) SnapshotsInc()    { w.m.SnapshotsTotal.Inc() }
func (w *MetricsWrapper) MalformedInc()    { w.m.MalformedTotal.Inc() }
func (w *MetricsWrapper) DroppedSendsInc() { w.m.DroppedSends.Inc() }

// Journal

func (w *MetricsWrapper) JournalWriteInc()   { w.m.JournalWrites.Inc() }
func (w *MetricsWrapper) JournalFailureInc() { w.m.JournalFailures.Inc() }

// Polling

func (w *MetricsWrapper) PollFetchObserve(resource string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	w.m.PollFetches.WithLabelValues(resource, result).Inc()
	w.m.PollFetchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// Clipboard

func (w *MetricsWrapper) ClipboardOutcomeInc(outcome string) {
	w.m.ClipboardOutcomes.WithLabelValues(outcome).Inc()
}

func (w *MetricsWrapper) ClipboardStrategyFailureInc(strategy string) {
	w.m.ClipboardStrategyFailure.WithLabelValues(strategy).Inc()
}
