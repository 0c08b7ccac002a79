package trace

import (
	"errors"
	"fmt"
	"math"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/stateest"
)

// ErrLengthMismatch is returned by Compare for traces of different length.
var ErrLengthMismatch = errors.New("trace: traces differ in length")

// Channels names the six filtered channels in report order.
var Channels = [6]string{"angle_x", "angle_y", "angle_z", "rate_x", "rate_y", "rate_z"}

// Replay runs samples through a fresh filter and returns one estimate per
// sample. A non-finite sample is skipped by the filter, so its estimate
// repeats the previous output.
func Replay(samples []imu.Sample, tickPeriod float64, cfg stateest.FilterConfig) ([]imu.Estimate, error) {
	f, err := stateest.New(tickPeriod, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]imu.Estimate, len(samples))
	for i, s := range samples {
		f.Process(s.Angle, s.Rate)
		angle, rate := f.Data()
		out[i] = imu.Estimate{
			Seq:            s.Seq,
			TimestampNanos: s.TimestampNanos,
			Angle:          angle,
			Rate:           rate,
			Raw:            s,
		}
	}
	return out, nil
}

// channel returns filtered channel c of e.
func channel(e imu.Estimate, c int) float64 {
	if c < 3 {
		return e.Angle[c]
	}
	return e.Rate[c-3]
}

// rawChannel returns raw channel c of e.
func rawChannel(e imu.Estimate, c int) float64 {
	if c < 3 {
		return e.Raw.Angle[c]
	}
	return e.Raw.Rate[c-3]
}

// Comparison holds the per-channel maximum absolute difference between two
// estimate traces.
type Comparison struct {
	Samples     int        `json:"samples"`
	MaxAbsError [6]float64 `json:"max_abs_error"`
	// WorstIndex is the sample index of each channel's maximum.
	WorstIndex [6]int `json:"worst_index"`
}

// MaxError returns the largest error over all channels.
func (c Comparison) MaxError() float64 {
	m := 0.0
	for _, v := range c.MaxAbsError {
		m = math.Max(m, v)
	}
	return m
}

// Within reports whether every channel differs by at most tol.
func (c Comparison) Within(tol float64) bool {
	return c.MaxError() <= tol
}

// Compare measures how far replayed deviates from recorded.
func Compare(recorded, replayed []imu.Estimate) (Comparison, error) {
	if len(recorded) != len(replayed) {
		return Comparison{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(recorded), len(replayed))
	}
	cmp := Comparison{Samples: len(recorded)}
	for i := range recorded {
		for c := range Channels {
			d := math.Abs(channel(recorded[i], c) - channel(replayed[i], c))
			if math.IsNaN(d) {
				d = math.Inf(1)
			}
			if d > cmp.MaxAbsError[c] {
				cmp.MaxAbsError[c] = d
				cmp.WorstIndex[c] = i
			}
		}
	}
	return cmp, nil
}
