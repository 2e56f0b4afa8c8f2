package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	vdot "github.com/lucasjlepore/vdot-analyzer"
)

// Order is an ARIMA(p,d,q) model order. Only d of 0 or 1 is supported.
type Order struct {
	P, D, Q int
}

func (o Order) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// arima is a regression with ARMA(p,q) errors on the d-th difference of the
// series, fitted by conditional sum of squares.
type arima struct {
	order     Order
	withConst bool
	k         int

	constant float64
	beta     []float64
	phi      []float64
	theta    []float64
	sigma2   float64

	// varianceNote is set when sigma2 could not be estimated from the
	// residuals and a fallback was used.
	varianceNote string

	z     []float64   // differenced series
	w     [][]float64 // differenced exog
	u     []float64   // regression errors z - c - w·β
	e     []float64   // innovations, zero before index p
	yLast float64
	xLast []float64
}

// fitARIMA fits order to y with optional exog rows (nil for none). A constant
// is estimated only when d is 0 and withConst is set.
func fitARIMA(y []float64, exog [][]float64, order Order, withConst bool) (*arima, error) {
	name := order.String()
	if len(exog) > 0 {
		name += " with exog"
	}
	fail := func(format string, args ...any) error {
		return &vdot.ModelFitError{Model: name, Err: fmt.Errorf(format, args...)}
	}

	if order.D < 0 || order.D > 1 || order.P < 0 || order.Q < 0 {
		return nil, fail("unsupported order %v", order)
	}
	if len(exog) > 0 && len(exog) != len(y) {
		return nil, fail("exog has %d rows for %d observations", len(exog), len(y))
	}
	for _, v := range y {
		if !isFinite(v) {
			return nil, fail("series contains non-finite values")
		}
	}

	m := &arima{order: order, withConst: withConst && order.D == 0}
	if len(exog) > 0 {
		m.k = len(exog[0])
	}
	m.z, m.w = difference(y, exog, order.D)
	m.yLast = y[len(y)-1]
	if m.k > 0 {
		m.xLast = append([]float64(nil), exog[len(exog)-1]...)
	}

	regressors := m.k
	if m.withConst {
		regressors++
	}
	nResid := len(m.z) - order.P
	if nResid < 1 {
		return nil, fail("%d observations are too few for the model order", len(y))
	}
	if m.k > 0 && nResid <= regressors {
		return nil, fail("%d observations are too few for %d exogenous regressors", len(y), m.k)
	}

	design := m.design()
	if m.k > 0 {
		if rank := matrixRank(design); rank < regressors {
			return nil, fail("exogenous design is rank deficient (rank %d of %d)", rank, regressors)
		}
	}

	x0 := make([]float64, 0, regressors+order.P+order.Q)
	if regressors > 0 {
		init, _, err := lstsq(design, m.z)
		if err != nil {
			return nil, fail("initial regression: %w", err)
		}
		x0 = append(x0, init...)
	}
	x0 = append(x0, make([]float64, order.P+order.Q)...)

	if sse := m.css(x0); !isFinite(sse) {
		return nil, fail("non-finite objective at starting values")
	}

	best := x0
	if len(x0) > 0 {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				v := m.css(x)
				if !isFinite(v) {
					return math.MaxFloat64
				}
				return v
			},
		}
		settings := &optimize.Settings{FuncEvaluations: 2000 * len(x0)}
		result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if result == nil {
			if err == nil {
				err = errors.New("optimizer returned no result")
			}
			return nil, fail("optimize: %w", err)
		}
		if result.F <= m.css(x0) {
			best = result.X
		}
	}

	sse := m.css(best)
	if !isFinite(sse) {
		return nil, fail("non-finite objective after optimization")
	}
	m.unpack(best)
	m.u, m.e = m.residuals(best)
	m.sigma2, m.varianceNote = innovationVariance(sse, nResid-(regressors+order.P+order.Q), m.z)
	return m, nil
}

// minVariance is the smallest innovation variance treated as estimated.
// fallbackVariance applies when neither the residuals nor the differenced
// series carry any spread.
const (
	minVariance      = 1e-4
	fallbackVariance = 0.25
)

// innovationVariance returns sse/dof. When the fit has no residual degrees of
// freedom, or interpolates the series exactly, it falls back to the sample
// variance of z and then to fallbackVariance, and says which in note.
func innovationVariance(sse float64, dof int, z []float64) (sigma2 float64, note string) {
	if dof > 0 {
		if v := sse / float64(dof); v > minVariance {
			return v, ""
		}
		note = "residual variance collapsed"
	} else {
		note = fmt.Sprintf("no residual degrees of freedom (%d)", dof)
	}
	if len(z) >= 2 {
		if v := stat.Variance(z, nil); v > minVariance {
			return v, note + "; interval uses the sample variance of the series"
		}
	}
	return fallbackVariance, note + fmt.Sprintf("; interval uses a fixed variance of %g", fallbackVariance)
}

// difference applies d first differences to y and exog.
func difference(y []float64, exog [][]float64, d int) ([]float64, [][]float64) {
	if d == 0 {
		z := append([]float64(nil), y...)
		var w [][]float64
		for _, row := range exog {
			w = append(w, append([]float64(nil), row...))
		}
		return z, w
	}
	z := make([]float64, 0, len(y)-1)
	for t := 1; t < len(y); t++ {
		z = append(z, y[t]-y[t-1])
	}
	var w [][]float64
	for t := 1; t < len(exog); t++ {
		row := make([]float64, len(exog[t]))
		for j := range row {
			row[j] = exog[t][j] - exog[t-1][j]
		}
		w = append(w, row)
	}
	return z, w
}

// design is the regression matrix [1, w_t] (constant only when estimated).
func (m *arima) design() [][]float64 {
	rows := make([][]float64, len(m.z))
	for t := range rows {
		row := make([]float64, 0, m.k+1)
		if m.withConst {
			row = append(row, 1)
		}
		if m.k > 0 {
			row = append(row, m.w[t]...)
		}
		rows[t] = row
	}
	return rows
}

// params is one point in the optimizer's search space, decoded.
type params struct {
	constant float64
	beta     []float64
	phi      []float64
	theta    []float64
}

// decode maps raw optimizer coordinates to model parameters. AR and MA
// coefficients pass through tanh to stay inside (-1, 1).
func (m *arima) decode(x []float64) params {
	var p params
	i := 0
	if m.withConst {
		p.constant = x[i]
		i++
	}
	p.beta = append([]float64(nil), x[i:i+m.k]...)
	i += m.k
	p.phi = make([]float64, m.order.P)
	for j := range p.phi {
		p.phi[j] = math.Tanh(x[i])
		i++
	}
	p.theta = make([]float64, m.order.Q)
	for j := range p.theta {
		p.theta[j] = math.Tanh(x[i])
		i++
	}
	return p
}

func (m *arima) unpack(x []float64) {
	p := m.decode(x)
	m.constant, m.beta, m.phi, m.theta = p.constant, p.beta, p.phi, p.theta
}

// residuals computes regression errors and innovations for parameters x.
func (m *arima) residuals(x []float64) (u, e []float64) {
	p := m.decode(x)

	n := len(m.z)
	u = make([]float64, n)
	for t := 0; t < n; t++ {
		u[t] = m.z[t] - p.constant
		for j := 0; j < m.k; j++ {
			u[t] -= m.w[t][j] * p.beta[j]
		}
	}
	e = make([]float64, n)
	for t := m.order.P; t < n; t++ {
		v := u[t]
		for i, phi := range p.phi {
			v -= phi * u[t-1-i]
		}
		for j, theta := range p.theta {
			if t-1-j >= 0 {
				v -= theta * e[t-1-j]
			}
		}
		e[t] = v
	}
	return u, e
}

func (m *arima) css(x []float64) float64 {
	_, e := m.residuals(x)
	sse := 0.0
	for t := m.order.P; t < len(e); t++ {
		sse += e[t] * e[t]
	}
	return sse
}

// forecast projects steps ahead on the original scale. future holds one exog
// row per step and is ignored when the model has no exog. It returns the
// point forecast and forecast-error variance at every step.
func (m *arima) forecast(steps int, future [][]float64) (mean, variance []float64) {
	n := len(m.z)
	u := append(append(make([]float64, 0, n+steps), m.u...), make([]float64, steps)...)
	e := append(append(make([]float64, 0, n+steps), m.e...), make([]float64, steps)...)

	prevX := m.xLast
	level := m.yLast
	mean = make([]float64, steps)
	for h := 0; h < steps; h++ {
		t := n + h
		uhat := 0.0
		for i, phi := range m.phi {
			if t-1-i >= 0 {
				uhat += phi * u[t-1-i]
			}
		}
		for j, theta := range m.theta {
			if t-1-j >= 0 {
				uhat += theta * e[t-1-j]
			}
		}
		u[t] = uhat

		zhat := m.constant + uhat
		if m.k > 0 {
			row := future[h]
			for j := 0; j < m.k; j++ {
				xj := row[j]
				if m.order.D == 1 {
					xj -= prevX[j]
				}
				zhat += xj * m.beta[j]
			}
			prevX = row
		}

		if m.order.D == 1 {
			level += zhat
			mean[h] = level
		} else {
			mean[h] = zhat
		}
	}

	psi := psiWeights(m.phi, m.theta, steps)
	if m.order.D == 1 {
		for j := 1; j < len(psi); j++ {
			psi[j] += psi[j-1]
		}
	}
	variance = make([]float64, steps)
	acc := 0.0
	for h := 0; h < steps; h++ {
		acc += psi[h] * psi[h]
		variance[h] = m.sigma2 * acc
	}
	return mean, variance
}

// psiWeights returns the first n MA(∞) weights of an ARMA(p,q) process.
func psiWeights(phi, theta []float64, n int) []float64 {
	psi := make([]float64, n)
	if n == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < n; j++ {
		v := 0.0
		if j <= len(theta) {
			v = theta[j-1]
		}
		for i := 1; i <= len(phi) && i <= j; i++ {
			v += phi[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
