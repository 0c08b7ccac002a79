package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/timeutil"
)

// Recorder buffers estimates for one run and writes them in batches, either
// when BatchSize is reached or every FlushInterval. A batch that fails to
// write is dropped and counted, so the buffer never exceeds BatchSize.
type Recorder struct {
	db            *DB
	runID         string
	batchSize     int
	flushInterval time.Duration
	clock         timeutil.Clock

	mu      sync.Mutex
	buf     []imu.Estimate
	written int64
	dropped int64
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Clock         timeutil.Clock
}

// NewRecorder creates a Recorder for runID.
func NewRecorder(db *DB, runID string, cfg RecorderConfig) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Recorder{
		db:            db,
		runID:         runID,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		clock:         cfg.Clock,
		buf:           make([]imu.Estimate, 0, cfg.BatchSize),
	}
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// Record buffers est and flushes once the batch is full. Estimates holding
// NaN or ±Inf are dropped with imu.ErrNonFinite.
func (r *Recorder) Record(est imu.Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !est.IsFinite() {
		r.dropped++
		return fmt.Errorf("run %s seq %d: %w", r.runID, est.Seq, imu.ErrNonFinite)
	}
	r.buf = append(r.buf, est)
	if len(r.buf) >= r.batchSize {
		return r.flushLocked()
	}
	return nil
}

// Flush writes any buffered estimates.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.db.RecordEstimates(r.runID, r.buf); err != nil {
		n := len(r.buf)
		r.dropped += int64(n)
		r.buf = r.buf[:0]
		return fmt.Errorf("failed to flush %d estimates, dropped: %w", n, err)
	}
	r.written += int64(len(r.buf))
	r.buf = r.buf[:0]
	return nil
}

// Written returns the number of estimates committed so far.
func (r *Recorder) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Dropped returns the number of estimates discarded, either rejected by
// Record or lost with a failed batch.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run flushes every FlushInterval until ctx is done, then flushes once more.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(); err != nil {
				logf("Final flush for run %s failed: %v", r.runID, err)
				return err
			}
			logf("Recorder for run %s stopped after %d estimates (%d dropped)", r.runID, r.Written(), r.Dropped())
			return nil
		case <-ticker.C():
			if err := r.Flush(); err != nil {
				logf("Periodic flush for run %s failed: %v", r.runID, err)
			}
		}
	}
}
