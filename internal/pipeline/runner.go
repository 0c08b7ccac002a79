// Package pipeline runs the orientation filter on its own goroutine, fed by
// any ingest source and feeding subscribers and recorders.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/stateest"
)

var logf = monitoring.Prefixed("pipeline")

// ErrStopped is returned by HandleSample once Run has returned.
var ErrStopped = errors.New("pipeline: runner stopped")

// Recorder persists estimates. Record is called from the runner goroutine.
type Recorder interface {
	Record(imu.Estimate) error
}

// Config configures a Runner.
type Config struct {
	TickPeriod  float64
	Filter      stateest.FilterConfig
	InputBuffer int
	Publisher   *Publisher
	Recorder    Recorder
}

type command struct {
	sample imu.Sample
	reset  bool
}

// Runner owns one EulerRateFilter. Only the goroutine executing Run touches
// the filter; other goroutines submit samples and read Latest.
type Runner struct {
	filter     *stateest.EulerRateFilter
	tickPeriod float64
	filterCfg  stateest.FilterConfig

	cmds chan command
	done chan struct{}
	once sync.Once

	pub *Publisher
	rec Recorder

	mu         sync.RWMutex
	latest     imu.Estimate
	haveLatest bool

	processed   atomic.Uint64
	rejected    atomic.Uint64
	recordFails atomic.Uint64
}

// NewRunner builds a Runner and its filter.
func NewRunner(cfg Config) (*Runner, error) {
	f, err := stateest.New(cfg.TickPeriod, cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}
	buf := cfg.InputBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Runner{
		filter:     f,
		tickPeriod: cfg.TickPeriod,
		filterCfg:  cfg.Filter,
		cmds:       make(chan command, buf),
		done:       make(chan struct{}),
		pub:        cfg.Publisher,
		rec:        cfg.Recorder,
	}, nil
}

// HandleSample queues s for the filter. It blocks while the input queue is
// full and fails once the runner has stopped.
func (r *Runner) HandleSample(s imu.Sample) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.cmds <- command{sample: s}:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Reset queues a filter reset behind any samples already submitted.
func (r *Runner) Reset() {
	select {
	case r.cmds <- command{reset: true}:
	case <-r.done:
	}
}

// Run processes queued commands until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer r.once.Do(func() { close(r.done) })
	logf("Runner started (tick period %gs)", r.tickPeriod)

	for {
		select {
		case <-ctx.Done():
			logf("Runner stopping after %d samples", r.processed.Load())
			return ctx.Err()
		case cmd := <-r.cmds:
			if cmd.reset {
				r.filter.Reset()
				r.mu.Lock()
				r.latest = imu.Estimate{}
				r.haveLatest = false
				r.mu.Unlock()
				logf("Filter reset")
				continue
			}
			r.process(cmd.sample)
		}
	}
}

func (r *Runner) process(s imu.Sample) {
	if !s.IsFinite() {
		if r.rejected.Add(1) == 1 {
			logf("Rejecting non-finite sample %d (further rejections counted only)", s.Seq)
		}
		return
	}

	// Counted last so Processed never runs ahead of Latest.
	defer r.processed.Add(1)

	r.filter.Process(s.Angle, s.Rate)
	if !r.filter.Initialized() {
		return
	}
	angle, rate := r.filter.Data()

	est := imu.Estimate{
		Seq:            s.Seq,
		TimestampNanos: s.TimestampNanos,
		Angle:          angle,
		Rate:           rate,
		Raw:            s,
	}

	r.mu.Lock()
	r.latest = est
	r.haveLatest = true
	r.mu.Unlock()

	if r.pub != nil {
		r.pub.Publish(est)
	}
	if r.rec != nil {
		if err := r.rec.Record(est); err != nil {
			if r.recordFails.Add(1) == 1 {
				logf("Recorder error (further errors counted only): %v", err)
			}
		}
	}
}

// Latest returns the most recent estimate, if any.
func (r *Runner) Latest() (imu.Estimate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.haveLatest
}

// Processed returns the number of samples filtered.
func (r *Runner) Processed() uint64 { return r.processed.Load() }

// Rejected returns the number of samples dropped for holding NaN or ±Inf.
func (r *Runner) Rejected() uint64 { return r.rejected.Load() }

// RecordErrors returns the number of failed Record calls.
func (r *Runner) RecordErrors() uint64 { return r.recordFails.Load() }

// TickPeriod returns the filter tick period in seconds.
func (r *Runner) TickPeriod() float64 { return r.tickPeriod }

// FilterConfig returns the filter noise tuning.
func (r *Runner) FilterConfig() stateest.FilterConfig { return r.filterCfg }

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }
