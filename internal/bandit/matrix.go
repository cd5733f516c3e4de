package bandit

import "math"

// Dim is the LinUCB feature dimension.
const Dim = 8

// #region matrix-types

// Vec and Mat are fixed-size value types; arms store them inline so no
// per-arm heap allocation happens on the hot path.
type Vec [Dim]float64

// Mat is a Dim×Dim row-major matrix.
type Mat [Dim][Dim]float64

func identity() Mat {
	var m Mat
	for i := 0; i < Dim; i++ {
		m[i][i] = 1.0
	}
	return m
}

// #endregion matrix-types

// #region ops

// matVec computes M·v.
func matVec(m Mat, v Vec) Vec {
	var out Vec
	for i := 0; i < Dim; i++ {
		sum := 0.0
		for j := 0; j < Dim; j++ {
			sum += m[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}

// dot computes aᵀb.
func dot(a, b Vec) float64 {
	sum := 0.0
	for i := 0; i < Dim; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// addOuter adds x·xᵀ into m.
func addOuter(m *Mat, x Vec) {
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			m[i][j] += x[i] * x[j]
		}
	}
}

// #endregion ops

// #region inverse

// invert computes the inverse via Gauss–Jordan elimination with partial
// pivoting. Returns false when a pivot column maximum falls below 1e−12
// (singular); the ridge prior keeps arm matrices positive-definite, so
// callers treat that as a transient and fall back to identity.
func invert(src Mat) (Mat, bool) {
	var aug [Dim][2 * Dim]float64
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			aug[i][j] = src[i][j]
			if i == j {
				aug[i][j+Dim] = 1.0
			}
		}
	}

	for col := 0; col < Dim; col++ {
		maxRow := col
		maxVal := math.Abs(aug[col][col])
		for row := col + 1; row < Dim; row++ {
			if v := math.Abs(aug[row][col]); v > maxVal {
				maxVal = v
				maxRow = row
			}
		}
		if maxVal < 1e-12 {
			return Mat{}, false
		}
		if maxRow != col {
			aug[col], aug[maxRow] = aug[maxRow], aug[col]
		}

		pivot := aug[col][col]
		for j := 0; j < 2*Dim; j++ {
			aug[col][j] /= pivot
		}

		for row := 0; row < Dim; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			for j := 0; j < 2*Dim; j++ {
				aug[row][j] -= factor * aug[col][j]
			}
		}
	}

	var inv Mat
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			inv[i][j] = aug[i][j+Dim]
		}
	}
	return inv, true
}

// #endregion inverse
