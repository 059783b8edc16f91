// Package profiler - Stage timing for a single request.
package profiler

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// TimeTracker tracks timing statistics of one stage.
type TimeTracker struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// Mean returns the average duration, or zero when nothing was recorded.
func (t TimeTracker) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.TotalTime / time.Duration(t.Count)
}

// Profiler accumulates stage durations. It is safe for concurrent use, so
// a decoder goroutine and its consumer can share one.
type Profiler struct {
	mu     sync.Mutex
	order  []string
	stages map[string]*TimeTracker
}

// New creates an empty profiler.
func New() *Profiler {
	return &Profiler{stages: make(map[string]*TimeTracker)}
}

// StartOperation starts timing a stage and returns the function that stops it.
//
// Arguments:
//   - name: The stage name.
//
// Returns:
//   - func(): Records the elapsed time when called.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one sample to a stage.
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.stages[name]
	if !ok {
		t = &TimeTracker{Name: name, MinTime: d, MaxTime: d}
		p.stages[name] = t
		p.order = append(p.order, name)
	}
	t.Count++
	t.TotalTime += d
	t.MinTime = min(t.MinTime, d)
	t.MaxTime = max(t.MaxTime, d)
}

// Stats returns a snapshot of every stage in first-recorded order.
func (p *Profiler) Stats() []TimeTracker {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TimeTracker, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, *p.stages[name])
	}
	return out
}

// MarshalLogObject logs each stage as {count, total_ms, mean_ms, max_ms}.
func (p *Profiler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, t := range p.Stats() {
		err := enc.AddObject(t.Name, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			enc.AddInt64("count", t.Count)
			enc.AddFloat64("total_ms", ms(t.TotalTime))
			enc.AddFloat64("mean_ms", ms(t.Mean()))
			enc.AddFloat64("max_ms", ms(t.MaxTime))
			return nil
		}))
		if err != nil {
			return err
		}
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
