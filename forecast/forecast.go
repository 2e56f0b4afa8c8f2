// Package forecast projects a runner's score forward by blending an ARIMA
// model of the score history with a regression on training volume.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
)

const (
	// MinObservations is the smallest usable score history.
	MinObservations = 3
	// ContextDays is the training window summarized before each observation.
	ContextDays = 30
	// DaysPerMonth converts a month horizon into calendar days.
	DaysPerMonth = 30.44
	// Confidence is the two-sided coverage of the reported interval.
	Confidence = 0.80
	// BlendWeight is the ARIMA share of the blended point forecast.
	BlendWeight = 0.5
	// MaxMonths bounds the forecast horizon.
	MaxMonths = 60

	dateLayout = "2006-01-02"
)

// Model selects the forecasting variant.
type Model string

const (
	// ModelStatistical forecasts with ARIMA(2,0,1) alone.
	ModelStatistical Model = "statistical"
	// ModelBlended averages ARIMA(1,1,1) with a linear regression.
	ModelBlended Model = "blended"
)

// ParseModel accepts "statistical"/"v1" and "blended"/"v2"; empty means blended.
func ParseModel(s string) (Model, error) {
	switch s {
	case "", string(ModelBlended), "v2":
		return ModelBlended, nil
	case string(ModelStatistical), "v1":
		return ModelStatistical, nil
	default:
		return "", fmt.Errorf("unsupported model %q (expected blended|statistical)", s)
	}
}

// Failure reasons.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonModelFailed      = "model_failed"
	ReasonInvalidInput     = "invalid_input"
	ReasonInternal         = "internal"
)

// Point is one score observation.
type Point struct {
	Date  time.Time `json:"start_date"`
	Score float64   `json:"vdot"`
}

// TrainingContext summarizes the runs in the window before a date.
type TrainingContext struct {
	TotalDistanceKM float64 `json:"total_distance_km"`
	RunCount        int     `json:"run_count"`
	AvgSpeed        float64 `json:"avg_speed"`
	AvgHR           float64 `json:"avg_hr"`
}

func (c TrainingContext) vector() []float64 {
	return []float64{c.TotalDistanceKM, float64(c.RunCount), c.AvgSpeed, c.AvgHR}
}

// AvgPaceSecPerKM converts the mean speed (m/s) into seconds per kilometer.
func (c TrainingContext) AvgPaceSecPerKM() float64 {
	if c.AvgSpeed <= 0 {
		return 0
	}
	return 1000 / c.AvgSpeed
}

// Forecast is a successful projection. Pointer fields are nil when no recent
// training context exists to drive the models.
type Forecast struct {
	LastScore       float64          `json:"last_vdot"`
	LastDate        string           `json:"last_date"`
	PredictedScore  *float64         `json:"predicted_vdot"`
	PredictionDate  string           `json:"prediction_date"`
	Lower80         *float64         `json:"lower_bound_80pct"`
	Upper80         *float64         `json:"upper_bound_80pct"`
	Change          *float64         `json:"change"`
	MonthsAhead     float64          `json:"months_ahead"`
	Model           string           `json:"model"`
	Degraded        string           `json:"degraded,omitempty"`
	StatisticalPart *float64         `json:"arima_vdot,omitempty"`
	RegressionPart  *float64         `json:"regression_vdot,omitempty"`
	RegressionR2    *float64         `json:"regression_r2,omitempty"`
	Observations    int              `json:"observations"`
	Context         *TrainingContext `json:"training_context,omitempty"`
}

// Failure is a structured forecasting error.
type Failure struct {
	Reason  string `json:"error"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return f.Reason + ": " + f.Message
}

// Outcome carries exactly one of Forecast or Failure.
type Outcome struct {
	Forecast *Forecast `json:"forecast,omitempty"`
	Failure  *Failure  `json:"failure,omitempty"`
}

// OK reports whether the outcome holds a forecast.
func (o Outcome) OK() bool {
	return o.Forecast != nil
}

// Options configures Predict.
type Options struct {
	Model  Model
	Now    func() time.Time
	Logger *slog.Logger
}

// Predict forecasts the score months ahead from the observation history and
// the normalized runs. It never panics and never returns a raw error.
func Predict(points []Point, runs []activity.Run, months float64, opts Options) (out Outcome) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("forecast panicked", "panic", r)
			out = Outcome{Failure: &Failure{Reason: ReasonInternal, Message: fmt.Sprint(r)}}
		}
	}()

	if opts.Model == "" {
		opts.Model = ModelBlended
	}
	if opts.Model != ModelBlended && opts.Model != ModelStatistical {
		return failure(ReasonInvalidInput, "unsupported model %q", opts.Model)
	}
	if !isFinite(months) || months <= 0 || months > MaxMonths {
		return failure(ReasonInvalidInput, "months ahead must be in (0, %d], got %v", MaxMonths, months)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	sortedRuns := make([]activity.Run, len(runs))
	copy(sortedRuns, runs)
	sort.SliceStable(sortedRuns, func(i, j int) bool { return sortedRuns[i].Start.Before(sortedRuns[j].Start) })

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var (
		xs     [][]float64
		ys     []float64
		latest Point
	)
	for _, p := range sorted {
		if !isFinite(p.Score) {
			continue
		}
		latest = p
		ctx, ok := Context(sortedRuns, p.Date)
		if !ok {
			continue
		}
		xs = append(xs, ctx.vector())
		ys = append(ys, p.Score)
	}
	if len(ys) < MinObservations {
		return failure(ReasonInsufficientData,
			"need at least %d score observations with %d days of prior training, have %d",
			MinObservations, ContextDays, len(ys))
	}
	logger.Debug("forecast training set", "observations", len(ys), "runs", len(sortedRuns), "model", opts.Model)

	order, withConst := Order{P: 1, D: 1, Q: 1}, false
	if opts.Model == ModelStatistical {
		order, withConst = Order{P: 2, D: 0, Q: 1}, true
	}

	scaler := FitScaler(xs)
	exog := scaler.TransformAll(xs)

	fc := &Forecast{
		MonthsAhead:  months,
		Model:        order.String() + " with exogenous training features",
		Observations: len(ys),
	}
	model, err := fitARIMA(ys, exog, order, withConst)
	if err != nil {
		var fitErr *vdot.ModelFitError
		if !errors.As(err, &fitErr) {
			return failure(ReasonModelFailed, "%v", err)
		}
		logger.Warn("exogenous fit failed, falling back", "model", order.String(), "error", err)
		fc.Degraded = err.Error()
		fc.Model = order.String()
		model, err = fitARIMA(ys, nil, order, withConst)
		if err != nil {
			return failure(ReasonModelFailed, "%v", err)
		}
		exog = nil
	}
	if model.varianceNote != "" {
		logger.Debug("innovation variance fallback", "model", order.String(), "note", model.varianceNote)
		fc.Degraded = joinNote(fc.Degraded, model.varianceNote)
	}
	if opts.Model == ModelBlended {
		fc.Model = fmt.Sprintf("%.0f%% %s + %.0f%% linear regression", BlendWeight*100, fc.Model, (1-BlendWeight)*100)
	}

	fc.LastScore = round2(latest.Score)
	fc.LastDate = latest.Date.Format(dateLayout)
	days := int(math.Round(months * DaysPerMonth))
	fc.PredictionDate = now().AddDate(0, 0, days).Format(dateLayout)

	// The latest observation anchors the forecast; without training before it
	// there is nothing to project from.
	recent, ok := Context(sortedRuns, latest.Date)
	if !ok {
		logger.Warn("no training before the latest observation", "date", fc.LastDate)
		fc.Degraded = joinNote(fc.Degraded, fmt.Sprintf("no runs in the %d days before %s", ContextDays, fc.LastDate))
		return Outcome{Forecast: fc}
	}
	fc.Context = &recent

	steps := max(1, int(math.Round(months)))
	var future [][]float64
	if exog != nil {
		scaled := scaler.Transform(recent.vector())
		future = make([][]float64, steps)
		for i := range future {
			future[i] = scaled
		}
	}
	mean, variance := model.forecast(steps, future)
	statistical := mean[steps-1]
	z := distuv.UnitNormal.Quantile(0.5 + Confidence/2)
	half := z * math.Sqrt(variance[steps-1])

	point := statistical
	if opts.Model == ModelBlended {
		lr, err := FitLinear(xs, ys)
		if err != nil {
			logger.Warn("regression fit failed, using ARIMA alone", "error", err)
			fc.Degraded = joinNote(fc.Degraded, "regression: "+err.Error())
		} else {
			regression := lr.Predict(recent.vector())
			point = BlendWeight*statistical + (1-BlendWeight)*regression
			fc.RegressionPart = floatPtr(round2(regression))
			fc.RegressionR2 = floatPtr(round2(lr.R2(xs, ys)))
		}
	}
	if !isFinite(point) || !isFinite(half) {
		return failure(ReasonModelFailed, "model produced a non-finite forecast")
	}

	fc.StatisticalPart = floatPtr(round2(statistical))
	fc.PredictedScore = floatPtr(round2(point))
	fc.Lower80 = floatPtr(round2(statistical - half))
	fc.Upper80 = floatPtr(round2(statistical + half))
	fc.Change = floatPtr(round2(point - latest.Score))
	return Outcome{Forecast: fc}
}

// Context aggregates runs with at-30d <= start < at. Runs without a recorded
// average speed contribute distance over moving time. ok is false when the
// window is empty or no run reports heart rate.
func Context(runs []activity.Run, at time.Time) (TrainingContext, bool) {
	from := at.AddDate(0, 0, -ContextDays)
	var (
		ctx      TrainingContext
		speedSum float64
		speedN   int
		hrSum    float64
		hrN      int
	)
	for _, r := range runs {
		if r.Start.Before(from) || !r.Start.Before(at) {
			continue
		}
		ctx.RunCount++
		ctx.TotalDistanceKM += r.DistanceKM
		switch {
		case r.AverageSpeed != nil && isFinite(*r.AverageSpeed):
			speedSum += *r.AverageSpeed
			speedN++
		case r.MovingTimeS > 0:
			speedSum += r.DistanceMeters() / r.MovingTimeS
			speedN++
		}
		if r.AverageHR != nil && isFinite(*r.AverageHR) {
			hrSum += *r.AverageHR
			hrN++
		}
	}
	if ctx.RunCount == 0 || speedN == 0 || hrN == 0 {
		return TrainingContext{}, false
	}
	ctx.AvgSpeed = speedSum / float64(speedN)
	ctx.AvgHR = hrSum / float64(hrN)
	return ctx, true
}

func failure(reason, format string, args ...any) Outcome {
	return Outcome{Failure: &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}}
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func floatPtr(v float64) *float64 {
	out := v
	return &out
}
