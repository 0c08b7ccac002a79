// Package stateest estimates body orientation and angular rate for a biped
// from noisy per-tick IMU samples.
//
// The estimator runs one linear Kalman filter per axis (X, Y, Z) over a
// 6-dimensional state. All three axes share the same model matrices and the
// same estimate covariance, so the Kalman gain is computed once per tick and
// applied to each axis state in turn. Because the covariance recursion does
// not depend on the measurements, sharing it is exact rather than an
// approximation: three separate filters with identical tuning would carry
// identical covariances.
//
// EulerRateFilter is not safe for concurrent use. Callers that share an
// instance across goroutines must serialise Process, Data and Reset.
package stateest
