// Package sim generates synthetic IMU traces with known ground truth.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// Signal is a noiseless ground-truth orientation and rate as a function of
// time in seconds since the start of the trace.
type Signal interface {
	At(t float64) (angle, rate [3]float64)
}

// Constant holds the same angle and rate forever.
type Constant struct {
	Angle [3]float64
	Rate  [3]float64
}

func (c Constant) At(float64) (angle, rate [3]float64) { return c.Angle, c.Rate }

// Step switches from Before to After at time T.
type Step struct {
	Before Constant
	After  Constant
	T      float64
}

func (s Step) At(t float64) (angle, rate [3]float64) {
	if t < s.T {
		return s.Before.At(t)
	}
	return s.After.At(t)
}

// Sine is a per-axis sinusoidal orientation. Rate is its exact derivative.
type Sine struct {
	Amplitude [3]float64 // rad
	FreqHz    [3]float64
	Phase     [3]float64 // rad
	Offset    [3]float64 // rad
}

func (s Sine) At(t float64) (angle, rate [3]float64) {
	for i := 0; i < 3; i++ {
		w := 2 * math.Pi * s.FreqHz[i]
		angle[i] = s.Offset[i] + s.Amplitude[i]*math.Sin(w*t+s.Phase[i])
		rate[i] = s.Amplitude[i] * w * math.Cos(w*t+s.Phase[i])
	}
	return angle, rate
}

// Config controls sample timing and measurement noise.
type Config struct {
	TickPeriod float64   // seconds
	AngleNoise float64   // standard deviation, rad
	RateNoise  float64   // standard deviation, rad/s
	Seed       int64     // noise seed; equal seeds give equal traces
	Start      time.Time // timestamp of the first sample; zero means the Unix epoch
}

// Generator produces successive noisy samples of a Signal.
type Generator struct {
	signal Signal
	cfg    Config
	rng    *rand.Rand
	seq    uint64
}

// NewGenerator returns a generator for signal.
func NewGenerator(signal Signal, cfg Config) (*Generator, error) {
	if signal == nil {
		return nil, fmt.Errorf("sim: nil signal")
	}
	if !(cfg.TickPeriod > 0) {
		return nil, fmt.Errorf("sim: tick period must be positive, got %v", cfg.TickPeriod)
	}
	if cfg.AngleNoise < 0 || cfg.RateNoise < 0 {
		return nil, fmt.Errorf("sim: noise must be non-negative")
	}
	return &Generator{
		signal: signal,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next returns the next sample.
func (g *Generator) Next() imu.Sample {
	t := float64(g.seq) * g.cfg.TickPeriod
	angle, rate := g.signal.At(t)
	for i := 0; i < 3; i++ {
		angle[i] += g.cfg.AngleNoise * g.rng.NormFloat64()
		rate[i] += g.cfg.RateNoise * g.rng.NormFloat64()
	}
	s := imu.Sample{
		Seq:            g.seq,
		TimestampNanos: g.startNanos() + int64(math.Round(t*float64(time.Second))),
		Angle:          angle,
		Rate:           rate,
	}
	g.seq++
	return s
}

func (g *Generator) startNanos() int64 {
	if g.cfg.Start.IsZero() {
		return 0
	}
	return g.cfg.Start.UnixNano()
}

// Samples returns the next n samples.
func (g *Generator) Samples(n int) []imu.Sample {
	out := make([]imu.Sample, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// Truth returns the noiseless signal at the time of sample seq.
func (g *Generator) Truth(seq uint64) (angle, rate [3]float64) {
	return g.signal.At(float64(seq) * g.cfg.TickPeriod)
}

// ParseSignal builds a named signal: "constant", "step" or "sine".
// amplitude scales the angle of every axis; freqHz applies to sine only.
func ParseSignal(name string, amplitude, freqHz float64) (Signal, error) {
	var a [3]float64
	for i := range a {
		a[i] = amplitude
	}
	switch name {
	case "constant":
		return Constant{Angle: a}, nil
	case "step":
		return Step{After: Constant{Angle: a}, T: 0.5}, nil
	case "sine":
		return Sine{Amplitude: a, FreqHz: [3]float64{freqHz, freqHz, freqHz}, Phase: [3]float64{0, math.Pi / 2, math.Pi}}, nil
	default:
		return nil, fmt.Errorf("sim: unknown signal %q (want constant, step or sine)", name)
	}
}
