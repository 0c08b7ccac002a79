package stateest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
)

func newTestFilter(t *testing.T, dt float64) *EulerRateFilter {
	t.Helper()
	f, err := New(dt, DefaultFilterConfig())
	require.NoError(t, err)
	return f
}

func TestNewRejectsBadTickPeriod(t *testing.T) {
	t.Parallel()
	for _, dt := range []float64{0, -0.001, math.NaN(), math.Inf(1)} {
		_, err := New(dt, DefaultFilterConfig())
		assert.ErrorIs(t, err, ErrInvalidTickPeriod, "dt=%v", dt)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*FilterConfig)
	}{
		{"negative process noise", func(c *FilterConfig) { c.ProcessNoiseRateVel = -1 }},
		{"NaN process noise", func(c *FilterConfig) { c.ProcessNoiseAngle = math.NaN() }},
		{"zero angle measurement noise", func(c *FilterConfig) { c.MeasurementNoiseAngle = 0 }},
		{"infinite rate measurement noise", func(c *FilterConfig) { c.MeasurementNoiseRate = math.Inf(1) }},
		{"zero initial covariance", func(c *FilterConfig) { c.InitialCovariance = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFilterConfig()
			tt.mutate(&cfg)
			_, err := New(0.001, cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDataBeforeFirstProcess(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, 0.001)
	angle, rate := f.Data()
	assert.Equal(t, [3]float64{}, angle)
	assert.Equal(t, [3]float64{}, rate)
	assert.False(t, f.Initialized())
	assert.Zero(t, f.Ticks())
}

func TestFirstProcessSeedsState(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, 0.001)
	P0 := f.Covariance()

	rawAngle := [3]float64{0.1, -0.2, 0.3}
	rawRate := [3]float64{1.5, -2.5, 0.25}
	f.Process(rawAngle, rawRate)

	angle, rate := f.Data()
	assert.Equal(t, rawAngle, angle)
	assert.Equal(t, rawRate, rate)
	assert.True(t, f.Initialized())
	assert.Equal(t, uint64(1), f.Ticks())

	// Auxiliary entries start at zero and no predict/update ran.
	assert.Equal(t, Vec6{-0.2, 0, 0, -2.5, 0, 0}, f.AxisState(AxisY))
	assert.Equal(t, P0, f.Covariance())
	assert.Equal(t, Mat6{}, f.Gain())
}

func TestStepScenario(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, 0.001)
	f.Process([3]float64{}, [3]float64{})
	for i := 0; i < 1000; i++ {
		f.Process([3]float64{0.1, 0, 0}, [3]float64{})
	}

	angle, rate := f.Data()
	assert.InDelta(t, 0.1, angle[AxisX], 1e-3)
	assert.Equal(t, 0.0, angle[AxisY])
	assert.Equal(t, 0.0, angle[AxisZ])
	assert.Equal(t, [3]float64{}, rate)
}

func TestConvergesToConstantInput(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, 0.001)
	f.Process([3]float64{1, -1, 0.5}, [3]float64{2, 0, -2})

	target := [3]float64{0.3, 0.2, -0.1}
	targetRate := [3]float64{0.5, -0.5, 1}
	for i := 0; i < 2000; i++ {
		f.Process(target, targetRate)
	}

	angle, rate := f.Data()
	for a := range angle {
		assert.InDelta(t, target[a], angle[a], 1e-3, "angle %s", Axis(a))
		assert.InDelta(t, targetRate[a], rate[a], 1e-3, "rate %s", Axis(a))
	}
}

func TestAttenuatesNoise(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, 0.001)
	rng := rand.New(rand.NewSource(42))

	const (
		ticks     = 6000
		warmup    = 2000
		angleSD   = 0.01
		rateSD    = 0.03
		trueAngle = 0.2
		trueRate  = -0.4
	)

	var rawA, filtA, rawW, filtW []float64
	for i := 0; i < ticks; i++ {
		a := trueAngle + angleSD*rng.NormFloat64()
		w := trueRate + rateSD*rng.NormFloat64()
		f.Process([3]float64{a, 0, 0}, [3]float64{w, 0, 0})
		if i < warmup {
			continue
		}
		angle, rate := f.Data()
		rawA = append(rawA, a)
		filtA = append(filtA, angle[AxisX])
		rawW = append(rawW, w)
		filtW = append(filtW, rate[AxisX])
	}

	assert.Less(t, stat.Variance(filtA, nil), 0.5*stat.Variance(rawA, nil))
	assert.Less(t, stat.Variance(filtW, nil), 0.5*stat.Variance(rawW, nil))
	assert.InDelta(t, trueAngle, stat.Mean(filtA, nil), 2e-3)
	assert.InDelta(t, trueRate, stat.Mean(filtW, nil), 5e-3)
}

func TestAxesAreIndependent(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	n := 500
	y := make([][2]float64, n)
	for i := range y {
		y[i] = [2]float64{rng.NormFloat64(), rng.NormFloat64()}
	}

	run := func(xScale float64) [][2]float64 {
		f := newTestFilter(t, 0.001)
		xr := rand.New(rand.NewSource(99))
		out := make([][2]float64, n)
		for i := 0; i < n; i++ {
			f.Process(
				[3]float64{xScale * xr.NormFloat64(), y[i][0], 0},
				[3]float64{xScale * xr.NormFloat64(), y[i][1], 0},
			)
			angle, rate := f.Data()
			out[i] = [2]float64{angle[AxisY], rate[AxisY]}
		}
		return out
	}

	// Changing the X inputs must not change Y outputs at all.
	if diff := cmp.Diff(run(1), run(1000)); diff != "" {
		t.Errorf("Y outputs depend on X inputs:\n%s", diff)
	}
}

func TestAxisPermutation(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	a := newTestFilter(t, 0.002)
	b := newTestFilter(t, 0.002)

	for i := 0; i < 300; i++ {
		ang := [3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		rate := [3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		a.Process(ang, rate)
		b.Process(
			[3]float64{ang[2], ang[0], ang[1]},
			[3]float64{rate[2], rate[0], rate[1]},
		)
	}

	// Same gain and covariance regardless of which axis carries which data.
	assert.Equal(t, a.Gain(), b.Gain())
	assert.Equal(t, a.Covariance(), b.Covariance())
	assert.Equal(t, a.AxisState(AxisX), b.AxisState(AxisY))
	assert.Equal(t, a.AxisState(AxisY), b.AxisState(AxisZ))
	assert.Equal(t, a.AxisState(AxisZ), b.AxisState(AxisX))
}

func TestCovarianceIndependentOfData(t *testing.T) {
	t.Parallel()
	a := newTestFilter(t, 0.001)
	b := newTestFilter(t, 0.001)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		a.Process([3]float64{}, [3]float64{})
		b.Process(
			[3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
			[3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
		)
	}
	assert.Equal(t, a.Gain(), b.Gain())
	assert.Equal(t, a.Covariance(), b.Covariance())
}

func TestDeterministic(t *testing.T) {
	t.Parallel()
	type output struct{ Angle, Rate [3]float64 }
	run := func() []output {
		f := newTestFilter(t, 0.001)
		rng := rand.New(rand.NewSource(21))
		var out []output
		for i := 0; i < 400; i++ {
			f.Process(
				[3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
				[3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
			)
			angle, rate := f.Data()
			out = append(out, output{angle, rate})
		}
		return out
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("identical inputs produced different outputs:\n%s", diff)
	}
}

func TestLongRunStability(t *testing.T) {
	if testing.Short() {
		t.Skip("long run")
	}
	t.Parallel()
	f := newTestFilter(t, 0.001)
	rng := rand.New(rand.NewSource(1))

	var midGain Mat6
	const ticks = 100000
	for i := 0; i < ticks; i++ {
		f.Process(
			[3]float64{0.01 * rng.NormFloat64(), 0.01 * rng.NormFloat64(), 0.01 * rng.NormFloat64()},
			[3]float64{0.03 * rng.NormFloat64(), 0.03 * rng.NormFloat64(), 0.03 * rng.NormFloat64()},
		)
		if i == ticks/2 {
			midGain = f.Gain()
		}
	}

	P := f.Covariance()
	require.True(t, P.IsFinite())
	assert.Equal(t, P, P.Transpose())
	for i := 0; i < StateDim; i++ {
		assert.Greater(t, P.At(i, i), 0.0, "P[%d,%d]", i, i)
	}

	// The Riccati recursion has settled, so the gain no longer moves.
	K := f.Gain()
	for i := range K {
		assert.InDelta(t, midGain[i], K[i], 1e-6, "K[%d]", i)
	}
	assert.Equal(t, uint64(ticks), f.Ticks())
}

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var logged []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	t.Cleanup(func() { monitoring.Logf = original })
	return &logged
}

func TestNonFiniteSampleIsRejected(t *testing.T) {
	logged := captureLogs(t)

	f := newTestFilter(t, 0.001)
	f.Process([3]float64{0.1, 0.2, 0.3}, [3]float64{1, 2, 3})
	wantState := f.AxisState(AxisX)
	wantP := f.Covariance()

	f.Process([3]float64{math.NaN(), 0.2, 0.3}, [3]float64{})
	f.Process([3]float64{0.1, 0.2, 0.3}, [3]float64{0, math.Inf(-1), 0})

	assert.True(t, f.Initialized())
	assert.Equal(t, uint64(2), f.Rejected())
	assert.Equal(t, uint64(3), f.Ticks())
	assert.Equal(t, wantState, f.AxisState(AxisX))
	assert.Equal(t, wantP, f.Covariance())
	angle, rate := f.Data()
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, angle)
	assert.Equal(t, [3]float64{1, 2, 3}, rate)
	// One log line per run of rejected samples.
	assert.Len(t, *logged, 1)

	f.Process([3]float64{0.1, 0.2, 0.3}, [3]float64{1, 2, 3})
	assert.NotEqual(t, Mat6{}, f.Gain())
	f.Process([3]float64{math.NaN(), 0, 0}, [3]float64{})
	assert.Len(t, *logged, 2)
}

func TestNonFiniteFirstSampleDoesNotSeed(t *testing.T) {
	captureLogs(t)

	f := newTestFilter(t, 0.001)
	f.Process([3]float64{math.NaN(), 0, 0}, [3]float64{})

	assert.False(t, f.Initialized())
	angle, rate := f.Data()
	assert.Equal(t, [3]float64{}, angle)
	assert.Equal(t, [3]float64{}, rate)

	f.Process([3]float64{0.1, 0, 0}, [3]float64{0, 0.5, 0})
	assert.True(t, f.Initialized())
	angle, rate = f.Data()
	assert.Equal(t, [3]float64{0.1, 0, 0}, angle)
	assert.Equal(t, [3]float64{0, 0.5, 0}, rate)
	assert.Equal(t, uint64(1), f.Rejected())

	// Same after an explicit Reset.
	f.Reset()
	f.Process([3]float64{0, math.Inf(1), 0}, [3]float64{})
	assert.False(t, f.Initialized())
	f.Process([3]float64{0.2, 0, 0}, [3]float64{})
	angle, _ = f.Data()
	assert.Equal(t, [3]float64{0.2, 0, 0}, angle)
}

func TestOverflowResetsAndReseeds(t *testing.T) {
	logged := captureLogs(t)

	f := newTestFilter(t, 0.001)
	f.Process([3]float64{math.MaxFloat64, 0, 0}, [3]float64{})
	f.Process([3]float64{-math.MaxFloat64, 0.2, 0.3}, [3]float64{1, 2, 3})

	assert.True(t, f.Initialized())
	assert.Equal(t, InitialCovariance(f.Config()), f.Covariance())
	angle, rate := f.Data()
	assert.Equal(t, [3]float64{-math.MaxFloat64, 0.2, 0.3}, angle)
	assert.Equal(t, [3]float64{1, 2, 3}, rate)
	assert.Len(t, *logged, 1)
	assert.Zero(t, f.Rejected())
}

func TestSampleIsFinite(t *testing.T) {
	t.Parallel()
	assert.True(t, SampleIsFinite([3]float64{1, 2, 3}, [3]float64{-1, 0, math.MaxFloat64}))
	assert.False(t, SampleIsFinite([3]float64{1, math.NaN(), 3}, [3]float64{}))
	assert.False(t, SampleIsFinite([3]float64{}, [3]float64{0, 0, math.Inf(1)}))
}

func TestReset(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, 0.001)
	P0 := f.Covariance()
	for i := 0; i < 10; i++ {
		f.Process([3]float64{0.1, 0.2, 0.3}, [3]float64{1, 2, 3})
	}
	require.NotEqual(t, P0, f.Covariance())

	f.Reset()
	assert.False(t, f.Initialized())
	assert.Zero(t, f.Ticks())
	assert.Equal(t, P0, f.Covariance())
	assert.Equal(t, Mat6{}, f.Gain())
	angle, rate := f.Data()
	assert.Equal(t, [3]float64{}, angle)
	assert.Equal(t, [3]float64{}, rate)

	// A reset filter behaves like a fresh one.
	fresh := newTestFilter(t, 0.001)
	for i := 0; i < 50; i++ {
		in := [3]float64{float64(i) * 0.01, 0, -0.1}
		f.Process(in, in)
		fresh.Process(in, in)
	}
	assert.Equal(t, fresh.AxisState(AxisX), f.AxisState(AxisX))
	assert.Equal(t, fresh.Covariance(), f.Covariance())
}

func TestAxisString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "x", AxisX.String())
	assert.Equal(t, "z", AxisZ.String())
	assert.Equal(t, "Axis(7)", Axis(7).String())
	assert.Equal(t, Vec6{}, newTestFilter(t, 0.001).AxisState(Axis(7)))
}

func TestFilterConfigFromDefaults(t *testing.T) {
	t.Parallel()
	cfg := DefaultFilterConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1e-4, cfg.MeasurementNoiseAngle)
	assert.Equal(t, 1e-3, cfg.MeasurementNoiseRate)
	assert.Equal(t, 1.0, cfg.InitialCovariance)
}
