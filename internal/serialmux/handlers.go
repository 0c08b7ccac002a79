package serialmux

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
)

var logf = monitoring.Prefixed("serialmux")

// DeviceStatus holds the latest key=value pairs reported by the device on
// its '#' status lines.
type DeviceStatus struct {
	mu     sync.Mutex
	values map[string]string
}

// Update merges a status line into the stored values.
func (d *DeviceStatus) Update(line string) {
	kv := imu.ParseStatus(line)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.values == nil {
		d.values = make(map[string]string)
	}
	for k, v := range kv {
		d.values[k] = v
	}
}

// Snapshot returns a copy of the stored values.
func (d *DeviceStatus) Snapshot() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// LineStats counts lines seen by a LineHandler.
type LineStats struct {
	Samples   atomic.Uint64
	Status    atomic.Uint64
	Unknown   atomic.Uint64
	Malformed atomic.Uint64
}

// LineHandler routes serial lines: samples to Sink, status lines to Status.
type LineHandler struct {
	Sink   imu.SampleSink
	Status *DeviceStatus
	Stats  LineStats
}

// HandleLine dispatches one line. Unknown and malformed lines are counted
// and logged but are not errors; an error from Sink is returned.
func (h *LineHandler) HandleLine(line string) error {
	switch imu.ClassifyLine(line) {
	case imu.LineSample:
		s, err := imu.ParseLine(line)
		if err != nil {
			h.Stats.Malformed.Add(1)
			logf("dropping malformed line %q: %v", line, err)
			return nil
		}
		h.Stats.Samples.Add(1)
		if err := h.Sink.HandleSample(s); err != nil {
			return fmt.Errorf("failed to handle sample %d: %w", s.Seq, err)
		}
	case imu.LineStatus:
		h.Stats.Status.Add(1)
		if h.Status != nil {
			h.Status.Update(line)
		}
	default:
		h.Stats.Unknown.Add(1)
		logf("unknown line: %s", line)
	}
	return nil
}

// Forward subscribes to mux and feeds every line to h until ctx is done,
// the subscription is closed, or the sink fails.
func (h *LineHandler) Forward(ctx context.Context, mux SerialMuxInterface) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := h.HandleLine(line); err != nil {
				return err
			}
		}
	}
}
