package coint

import "math"

// adfTest runs an augmented Dickey-Fuller regression with constant on the
// spread series and returns the t-statistic of the unit-root coefficient
// together with its MacKinnon p-value.
//
//	Δe_t = α + γ·e_{t-1} + Σ β_i·Δe_{t-i} + ε_t
//
// A spread with (numerically) zero variance is trivially stationary and
// reported as pValue 0 rather than dividing by zero.
func adfTest(spread []float64, lags int) (stat, pValue float64) {
	n := len(spread)

	var mean float64
	for _, v := range spread {
		mean += v
	}
	mean /= float64(n)
	var variance float64
	for _, v := range spread {
		d := v - mean
		variance += d * d
	}
	if variance/float64(n) < varianceEpsilon {
		return 0, 0
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = spread[i] - spread[i-1]
	}

	// Rows available once the lagged differences are consumed.
	rows := len(diff) - lags
	k := 2 + lags // constant, level term, lag terms
	if rows <= k {
		// Not enough observations to augment; fall back to plain DF.
		lags = 0
		rows = len(diff)
		k = 2
		if rows <= k {
			return 0, 1
		}
	}

	y := make([]float64, rows)
	X := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		t := i + lags // index into diff
		y[i] = diff[t]
		row := make([]float64, k)
		row[0] = 1
		row[1] = spread[t] // level e_{t-1} relative to diff[t] = e_{t+1}-e_t
		for j := 1; j <= lags; j++ {
			row[1+j] = diff[t-j]
		}
		X[i] = row
	}

	coef, se, ok := olsMulti(y, X)
	if !ok {
		return 0, 1
	}
	if se[1] == 0 {
		return 0, 0
	}

	stat = coef[1] / se[1]
	return stat, mackinnonP(stat)
}

// olsMulti solves a multiple linear regression by normal equations,
// returning coefficient estimates and their standard errors.
func olsMulti(y []float64, X [][]float64) (coef, se []float64, ok bool) {
	n := len(y)
	k := len(X[0])

	// Build X'X and X'y.
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r := 0; r < n; r++ {
		for i := 0; i < k; i++ {
			xty[i] += X[r][i] * y[r]
			for j := i; j < k; j++ {
				xtx[i][j] += X[r][i] * X[r][j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	inv, ok := invertSymmetric(xtx)
	if !ok {
		return nil, nil, false
	}

	coef = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coef[i] += inv[i][j] * xty[j]
		}
	}

	// Residual variance with n-k degrees of freedom.
	var rss float64
	for r := 0; r < n; r++ {
		fitted := 0.0
		for i := 0; i < k; i++ {
			fitted += X[r][i] * coef[i]
		}
		resid := y[r] - fitted
		rss += resid * resid
	}
	if n <= k {
		return nil, nil, false
	}
	sigma2 := rss / float64(n-k)

	se = make([]float64, k)
	for i := 0; i < k; i++ {
		se[i] = math.Sqrt(sigma2 * inv[i][i])
	}
	return coef, se, true
}

// invertSymmetric inverts a small positive-definite matrix by
// Gauss-Jordan elimination with partial pivoting.
func invertSymmetric(m [][]float64) ([][]float64, bool) {
	k := len(m)
	a := make([][]float64, k)
	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = append([]float64(nil), m[i]...)
		inv[i] = make([]float64, k)
		inv[i][i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-14 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		p := a[col][col]
		for j := 0; j < k; j++ {
			a[col][j] /= p
			inv[col][j] /= p
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for j := 0; j < k; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, true
}

// MacKinnon (1994) approximate asymptotic p-value for the ADF t-statistic
// in the constant, no-trend case. The statistic is mapped through a cubic
// and evaluated under the standard normal CDF.
const (
	tauMin  = -18.83
	tauMax  = 2.74
	tauStar = -1.61
)

var (
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, 0.05971, 0.00737}
)

func mackinnonP(tau float64) float64 {
	switch {
	case tau <= tauMin:
		return 0.0
	case tau >= tauMax:
		return 1.0
	}

	coeffs := tauLargeP
	if tau <= tauStar {
		coeffs = tauSmallP
	}

	z := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		z = z*tau + coeffs[i]
	}
	return normCDF(z)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
