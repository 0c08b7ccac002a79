package stateest

// State layout per axis: an angle block and a rate block, each a
// constant-acceleration chain over one tick.
const (
	IdxAngle    = 0 // θ
	IdxAngleVel = 1 // θ̇
	IdxAngleAcc = 2 // θ̈
	IdxRate     = 3 // ω
	IdxRateVel  = 4 // ω̇
	IdxRateAcc  = 5 // ω̈
)

// AuxMeasurementNoise is the variance placed on the unobserved rows of R.
// Those rows have zero observation and zero residual, so the value only
// keeps the innovation covariance invertible.
const AuxMeasurementNoise = 1.0

// TransitionMatrix returns F = blockdiag(A, A) with
// A = [1 dt dt²/2; 0 1 dt; 0 0 1].
func TransitionMatrix(dt float64) Mat6 {
	F := Identity6()
	for _, base := range []int{IdxAngle, IdxRate} {
		F.Set(base, base+1, dt)
		F.Set(base, base+2, 0.5*dt*dt)
		F.Set(base+1, base+2, dt)
	}
	return F
}

// ObservationMatrix returns H, selecting the angle and the rate.
func ObservationMatrix() Mat6 {
	var d Vec6
	d[IdxAngle] = 1
	d[IdxRate] = 1
	return Diag6(d)
}

// ProcessNoise returns Q for one tick. cfg values are per second.
func ProcessNoise(dt float64, cfg FilterConfig) Mat6 {
	return Diag6(Vec6{
		cfg.ProcessNoiseAngle * dt,
		cfg.ProcessNoiseAngleVel * dt,
		cfg.ProcessNoiseAngleAcc * dt,
		cfg.ProcessNoiseRate * dt,
		cfg.ProcessNoiseRateVel * dt,
		cfg.ProcessNoiseRateAcc * dt,
	})
}

// MeasurementNoise returns R.
func MeasurementNoise(cfg FilterConfig) Mat6 {
	return Diag6(Vec6{
		cfg.MeasurementNoiseAngle,
		AuxMeasurementNoise,
		AuxMeasurementNoise,
		cfg.MeasurementNoiseRate,
		AuxMeasurementNoise,
		AuxMeasurementNoise,
	})
}

// InitialCovariance returns P0 = p0·I.
func InitialCovariance(cfg FilterConfig) Mat6 {
	var d Vec6
	for i := range d {
		d[i] = cfg.InitialCovariance
	}
	return Diag6(d)
}

// measurementVector packs an observed angle and rate into the padded
// 6-vector compared against H·x.
func measurementVector(angle, rate float64) Vec6 {
	var z Vec6
	z[IdxAngle] = angle
	z[IdxRate] = rate
	return z
}
