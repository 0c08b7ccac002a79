package stateest

import "math"

// StateDim is the dimension of each per-axis state vector.
const StateDim = 6

// Vec6 is a per-axis state or measurement vector.
type Vec6 [StateDim]float64

// Mat6 is a 6x6 matrix stored row-major: element (i,j) is at index i*6+j.
type Mat6 [StateDim * StateDim]float64

// Identity6 returns the 6x6 identity matrix.
func Identity6() Mat6 {
	var m Mat6
	for i := 0; i < StateDim; i++ {
		m[i*StateDim+i] = 1
	}
	return m
}

// Diag6 returns a diagonal matrix with d on the diagonal.
func Diag6(d Vec6) Mat6 {
	var m Mat6
	for i := 0; i < StateDim; i++ {
		m[i*StateDim+i] = d[i]
	}
	return m
}

// At returns element (i,j).
func (m Mat6) At(i, j int) float64 {
	return m[i*StateDim+j]
}

// Set assigns element (i,j).
func (m *Mat6) Set(i, j int, v float64) {
	m[i*StateDim+j] = v
}

// Mul returns m * b.
func (m Mat6) Mul(b Mat6) Mat6 {
	var out Mat6
	for i := 0; i < StateDim; i++ {
		for k := 0; k < StateDim; k++ {
			a := m[i*StateDim+k]
			if a == 0 {
				continue
			}
			for j := 0; j < StateDim; j++ {
				out[i*StateDim+j] += a * b[k*StateDim+j]
			}
		}
	}
	return out
}

// MulVec returns m * v.
func (m Mat6) MulVec(v Vec6) Vec6 {
	var out Vec6
	for i := 0; i < StateDim; i++ {
		var sum float64
		for j := 0; j < StateDim; j++ {
			sum += m[i*StateDim+j] * v[j]
		}
		out[i] = sum
	}
	return out
}

// Transpose returns mᵀ.
func (m Mat6) Transpose() Mat6 {
	var out Mat6
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			out[j*StateDim+i] = m[i*StateDim+j]
		}
	}
	return out
}

// Add returns m + b.
func (m Mat6) Add(b Mat6) Mat6 {
	for i := range m {
		m[i] += b[i]
	}
	return m
}

// Sub returns m - b.
func (m Mat6) Sub(b Mat6) Mat6 {
	for i := range m {
		m[i] -= b[i]
	}
	return m
}

// Symmetrize returns (m + mᵀ)/2.
func (m Mat6) Symmetrize() Mat6 {
	for i := 0; i < StateDim; i++ {
		for j := i + 1; j < StateDim; j++ {
			avg := 0.5 * (m[i*StateDim+j] + m[j*StateDim+i])
			m[i*StateDim+j] = avg
			m[j*StateDim+i] = avg
		}
	}
	return m
}

// IsFinite reports whether every element of m is neither NaN nor ±Inf.
func (m Mat6) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Add returns v + b.
func (v Vec6) Add(b Vec6) Vec6 {
	for i := range v {
		v[i] += b[i]
	}
	return v
}

// Sub returns v - b.
func (v Vec6) Sub(b Vec6) Vec6 {
	for i := range v {
		v[i] -= b[i]
	}
	return v
}

// IsFinite reports whether every element of v is neither NaN nor ±Inf.
func (v Vec6) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
