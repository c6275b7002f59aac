package metrics

import (
	"context"
	"sync"
	"time"
)

// Threshold configures an SLO check: more than Limit increments of Metric
// within Window raises a signal.
type Threshold struct {
	Metric string
	Limit  int64
	Window time.Duration
}

// Signal is emitted once per window when a threshold is crossed. It is a
// hook for an external alerting consumer, not an alerting system.
type Signal struct {
	Metric    string    `json:"metric"`
	Observed  int64     `json:"observed"`
	Threshold int64     `json:"threshold"`
	At        time.Time `json:"at"`
}

type windowState struct {
	start time.Time
	count int64
	fired bool
}

// Evaluator wraps a Sink, maintaining rolling per-metric counts and
// invoking the handler when a configured threshold is exceeded.
// Thresholding is by metric name; labels pass through to the inner sink.
type Evaluator struct {
	next       Sink
	onExceeded func(Signal)
	now        func() time.Time

	mu         sync.Mutex
	thresholds map[string]Threshold
	windows    map[string]*windowState
}

func NewEvaluator(next Sink, thresholds []Threshold, onExceeded func(Signal)) *Evaluator {
	byMetric := make(map[string]Threshold, len(thresholds))
	for _, t := range thresholds {
		byMetric[t.Metric] = t
	}
	return &Evaluator{
		next:       next,
		onExceeded: onExceeded,
		now:        time.Now,
		thresholds: byMetric,
		windows:    make(map[string]*windowState),
	}
}

func (e *Evaluator) Incr(ctx context.Context, name string, labels Labels) {
	e.next.Incr(ctx, name, labels)

	e.mu.Lock()
	threshold, ok := e.thresholds[name]
	if !ok {
		e.mu.Unlock()
		return
	}

	now := e.now()
	w := e.windows[name]
	if w == nil || now.Sub(w.start) > threshold.Window {
		w = &windowState{start: now}
		e.windows[name] = w
	}
	w.count++

	var signal *Signal
	if w.count > threshold.Limit && !w.fired {
		w.fired = true
		signal = &Signal{
			Metric:    name,
			Observed:  w.count,
			Threshold: threshold.Limit,
			At:        now,
		}
	}
	e.mu.Unlock()

	// Handler runs outside the lock so it may increment metrics itself.
	if signal != nil && e.onExceeded != nil {
		e.onExceeded(*signal)
	}
}
