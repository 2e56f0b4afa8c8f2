package forecast

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// lstsq returns the minimum-norm least-squares solution of a·x = b and the
// numerical rank of a. Singular values below max(r,c)·σmax·ε are treated as
// zero.
func lstsq(rows [][]float64, b []float64) (x []float64, rank int, err error) {
	r := len(rows)
	if r == 0 || r != len(b) {
		return nil, 0, errors.New("lstsq: empty or mismatched system")
	}
	c := len(rows[0])
	if c == 0 {
		return []float64{}, 0, nil
	}

	a := mat.NewDense(r, c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, 0, errors.New("lstsq: ragged design matrix")
		}
		a.SetRow(i, row)
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, 0, errors.New("lstsq: SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)
	if len(s) == 0 {
		return make([]float64, c), 0, nil
	}

	tol := float64(max(r, c)) * s[0] * machineEpsilon
	x = make([]float64, c)
	for i, si := range s {
		if si <= tol {
			continue
		}
		rank++
		ub := 0.0
		for row := 0; row < r; row++ {
			ub += u.At(row, i) * b[row]
		}
		ub /= si
		for j := 0; j < c; j++ {
			x[j] += v.At(j, i) * ub
		}
	}
	return x, rank, nil
}

// matrixRank is the numerical rank of rows.
func matrixRank(rows [][]float64) int {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0
	}
	_, rank, err := lstsq(rows, make([]float64, len(rows)))
	if err != nil {
		return 0
	}
	return rank
}

// Scaler standardizes columns to zero mean and unit population variance.
// Zero-variance columns keep a scale of 1.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler learns per-column mean and standard deviation.
func FitScaler(rows [][]float64) Scaler {
	if len(rows) == 0 {
		return Scaler{}
	}
	cols := len(rows[0])
	s := Scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	col := make([]float64, len(rows))
	for j := 0; j < cols; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		std := math.Sqrt(variance)
		if std == 0 || !isFinite(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s
}

// Transform returns a standardized copy of row.
func (s Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformAll standardizes every row.
func (s Scaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}

// Linear is an ordinary least-squares fit with an intercept.
type Linear struct {
	Intercept float64
	Coef      []float64
}

// FitLinear fits y ≈ Intercept + X·Coef. Underdetermined systems get the
// minimum-norm coefficients.
func FitLinear(rows [][]float64, y []float64) (Linear, error) {
	if len(rows) == 0 || len(rows) != len(y) {
		return Linear{}, errors.New("linear fit: empty or mismatched data")
	}
	cols := len(rows[0])
	xMean := make([]float64, cols)
	for _, row := range rows {
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(len(rows))
	}
	yMean := stat.Mean(y, nil)

	centered := make([][]float64, len(rows))
	yc := make([]float64, len(y))
	for i, row := range rows {
		centered[i] = make([]float64, cols)
		for j, v := range row {
			centered[i][j] = v - xMean[j]
		}
		yc[i] = y[i] - yMean
	}

	coef, _, err := lstsq(centered, yc)
	if err != nil {
		return Linear{}, err
	}
	intercept := yMean
	for j, c := range coef {
		intercept -= c * xMean[j]
	}
	if !isFinite(intercept) {
		return Linear{}, errors.New("linear fit: non-finite coefficients")
	}
	return Linear{Intercept: intercept, Coef: coef}, nil
}

// Predict evaluates the fit at x.
func (l Linear) Predict(x []float64) float64 {
	out := l.Intercept
	for j, c := range l.Coef {
		out += c * x[j]
	}
	return out
}

// R2 is the coefficient of determination on (rows, y).
func (l Linear) R2(rows [][]float64, y []float64) float64 {
	pred := make([]float64, len(rows))
	for i, row := range rows {
		pred[i] = l.Predict(row)
	}
	return stat.RSquaredFrom(pred, y, nil)
}

const machineEpsilon = 2.220446049250313e-16

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
