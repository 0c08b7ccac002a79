package stateest

import (
	"errors"
	"fmt"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
)

var (
	// ErrInvalidTickPeriod is returned by New for a tick period that is not
	// a positive finite number.
	ErrInvalidTickPeriod = errors.New("stateest: tick period must be positive and finite")

	// ErrInvalidConfig is returned by New and FilterConfig.Validate for
	// out-of-range noise tuning.
	ErrInvalidConfig = errors.New("stateest: invalid filter config")
)

var logf = monitoring.Prefixed("stateest")

// Axis identifies one of the three body axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// NumAxes is the number of axes tracked by EulerRateFilter.
const NumAxes = 3

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// EulerRateFilter smooths Euler angles and body angular rates. It keeps one
// state vector per axis and a single SharedKalman for all three.
//
// The first Process call seeds the states from the sample without filtering.
// Every later call runs one predict and one correct.
type EulerRateFilter struct {
	dt  float64
	cfg FilterConfig
	p0  Mat6

	kf          *SharedKalman
	states      [NumAxes]Vec6
	initialized bool
	ticks       uint64
	rejected    uint64
	rejecting   bool

	angle [NumAxes]float64
	rate  [NumAxes]float64
}

// New builds a filter for samples arriving every tickPeriod seconds.
func New(tickPeriod float64, cfg FilterConfig) (*EulerRateFilter, error) {
	if !finite(tickPeriod) || tickPeriod <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTickPeriod, tickPeriod)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p0 := InitialCovariance(cfg)
	f := &EulerRateFilter{
		dt:  tickPeriod,
		cfg: cfg,
		p0:  p0,
		kf: NewSharedKalman(
			TransitionMatrix(tickPeriod),
			ObservationMatrix(),
			p0,
			ProcessNoise(tickPeriod, cfg),
			MeasurementNoise(cfg),
		),
	}
	return f, nil
}

// Process consumes one sample of raw angles (rad) and raw rates (rad/s),
// indexed by Axis, and refreshes the outputs returned by Data.
//
// A sample holding NaN or ±Inf is rejected: states, covariance and outputs
// are left as they were and Rejected is incremented.
func (f *EulerRateFilter) Process(rawAngle, rawRate [NumAxes]float64) {
	f.ticks++

	if !SampleIsFinite(rawAngle, rawRate) {
		f.rejected++
		if !f.rejecting {
			logf("tick %d: rejecting non-finite sample", f.ticks)
		}
		f.rejecting = true
		return
	}
	f.rejecting = false

	if !f.initialized {
		f.seed(rawAngle, rawRate)
		f.writeOutputs()
		return
	}

	x, y, z := &f.states[AxisX], &f.states[AxisY], &f.states[AxisZ]
	f.kf.Predict(x, y, z)

	meas := []Vec6{
		measurementVector(rawAngle[AxisX], rawRate[AxisX]),
		measurementVector(rawAngle[AxisY], rawRate[AxisY]),
		measurementVector(rawAngle[AxisZ], rawRate[AxisZ]),
	}
	if err := f.kf.Correct([]*Vec6{x, y, z}, meas); err != nil {
		logf("tick %d: skipping update: %v", f.ticks, err)
	}

	if !f.isFinite() {
		// Overflow; start again from the current sample.
		logf("tick %d: non-finite state, resetting filter", f.ticks)
		f.reset()
		f.seed(rawAngle, rawRate)
	}

	f.writeOutputs()
}

// SampleIsFinite reports whether every angle and rate is neither NaN nor ±Inf.
func SampleIsFinite(angle, rate [NumAxes]float64) bool {
	for a := 0; a < NumAxes; a++ {
		if !finite(angle[a]) || !finite(rate[a]) {
			return false
		}
	}
	return true
}

func (f *EulerRateFilter) seed(rawAngle, rawRate [NumAxes]float64) {
	for a := range f.states {
		f.states[a] = measurementVector(rawAngle[a], rawRate[a])
	}
	f.initialized = true
}

func (f *EulerRateFilter) writeOutputs() {
	for a := range f.states {
		f.angle[a] = f.states[a][IdxAngle]
		f.rate[a] = f.states[a][IdxRate]
	}
}

func (f *EulerRateFilter) isFinite() bool {
	for a := range f.states {
		if !f.states[a].IsFinite() {
			return false
		}
	}
	return f.kf.P.IsFinite()
}

// Data returns the filtered angles and rates from the most recent Process.
// Both are zero before the first Process.
func (f *EulerRateFilter) Data() (angle, rate [NumAxes]float64) {
	return f.angle, f.rate
}

// Initialized reports whether the filter has been seeded.
func (f *EulerRateFilter) Initialized() bool { return f.initialized }

// Ticks returns the number of Process calls since construction or Reset.
func (f *EulerRateFilter) Ticks() uint64 { return f.ticks }

// Rejected returns the number of non-finite samples dropped by Process since
// construction or Reset.
func (f *EulerRateFilter) Rejected() uint64 { return f.rejected }

// TickPeriod returns the tick period in seconds.
func (f *EulerRateFilter) TickPeriod() float64 { return f.dt }

// Config returns the noise tuning the filter was built with.
func (f *EulerRateFilter) Config() FilterConfig { return f.cfg }

// Gain returns the gain applied on the most recent tick. It is zero until
// the second Process.
func (f *EulerRateFilter) Gain() Mat6 { return f.kf.Gain() }

// Covariance returns the shared estimate covariance.
func (f *EulerRateFilter) Covariance() Mat6 { return f.kf.Covariance() }

// AxisState returns the full state vector for axis.
func (f *EulerRateFilter) AxisState(axis Axis) Vec6 {
	if axis < AxisX || axis > AxisZ {
		return Vec6{}
	}
	return f.states[axis]
}

// Reset returns the filter to its just-constructed state: uninitialised,
// P restored to P0 and outputs zeroed.
func (f *EulerRateFilter) Reset() {
	f.reset()
	f.ticks = 0
	f.rejected = 0
	f.rejecting = false
}

func (f *EulerRateFilter) reset() {
	f.kf.Reset(f.p0)
	f.states = [NumAxes]Vec6{}
	f.angle = [NumAxes]float64{}
	f.rate = [NumAxes]float64{}
	f.initialized = false
}
