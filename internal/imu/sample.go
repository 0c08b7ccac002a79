// Package imu defines the IMU sample and estimate types exchanged between
// the ingest sources, the estimation runtime and the recorders, along with
// the serial line and UDP datagram encodings of a sample.
package imu

import (
	"errors"
	"math"
	"time"
)

// ErrNonFinite is returned by decoders for a sample holding NaN or ±Inf.
var ErrNonFinite = errors.New("imu: non-finite sample value")

// Sample is one raw IMU reading: Euler angles in radians and body angular
// rates in rad/s, indexed X, Y, Z.
type Sample struct {
	Seq            uint64     `json:"seq"`
	TimestampNanos int64      `json:"ts"`
	Angle          [3]float64 `json:"eul"`
	Rate           [3]float64 `json:"w"`
}

// Time returns the sample timestamp.
func (s Sample) Time() time.Time {
	return time.Unix(0, s.TimestampNanos)
}

// IsFinite reports whether every angle and rate is neither NaN nor ±Inf.
func (s Sample) IsFinite() bool {
	return allFinite(s.Angle) && allFinite(s.Rate)
}

// Estimate is the filter output for one Sample.
type Estimate struct {
	Seq            uint64     `json:"seq"`
	TimestampNanos int64      `json:"ts"`
	Angle          [3]float64 `json:"angle"`
	Rate           [3]float64 `json:"rate"`
	Raw            Sample     `json:"raw"`
}

// IsFinite reports whether the estimate and its raw sample are free of NaN
// and ±Inf.
func (e Estimate) IsFinite() bool {
	return allFinite(e.Angle) && allFinite(e.Rate) && e.Raw.IsFinite()
}

func allFinite(v [3]float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// SampleSink receives decoded samples from an ingest source.
type SampleSink interface {
	HandleSample(Sample) error
}

// SampleSinkFunc adapts a function to SampleSink.
type SampleSinkFunc func(Sample) error

// HandleSample calls fn(s).
func (fn SampleSinkFunc) HandleSample(s Sample) error { return fn(s) }
