package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/store"
)

var day0 = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

// history writes six months of easy runs in three blocks of rising volume,
// plus 5 km races on days 60, 110 and 160 when withRaces is set.
func history(withRaces bool) string {
	races := map[int]float64{60: 1380, 110: 1320, 160: 1290}
	var b strings.Builder
	b.WriteString("Activity Date,Activity Type,Elapsed Time,Distance,Max Heart Rate,Moving Time,Average Heart Rate,Elevation Gain\n")
	line := func(day int, meters, moving, avgHR, maxHR float64) {
		date := day0.AddDate(0, 0, day).Format(activity.DateLayout)
		fmt.Fprintf(&b, "\"%s\",Run,%.0f,%.0f,%.0f,%.0f,%.0f,%.0f\n", date, moving+30, meters, maxHR, moving, avgHR, meters/200)
	}
	for day := 0; day < 180; day += 2 {
		if secs, ok := races[day]; ok {
			if withRaces {
				line(day, 5000, secs, 172, 185)
			}
			continue
		}
		switch {
		case day < 60:
			line(day, 6000, 2160, 145, 158)
		case day < 110:
			line(day, 8000, 2760, 143, 156)
		default:
			line(day, 11000, 3630, 142, 155)
		}
	}
	return b.String()
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Now == nil {
		now := day0.AddDate(0, 0, 180)
		opts.Now = func() time.Time { return now }
	}
	return New(opts)
}

func do(t *testing.T, s *Server, method, target, contentType string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestAnalyzeRawBody(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/v1/analyze", "text/csv", []byte(history(true)),
		map[string]string{RequestIDHeader: "req-123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	var resp struct {
		Data struct {
			VDOT         float64           `json:"vdot"`
			AvgHR        int               `json:"avg_hr"`
			RaceTimes    map[string]string `json:"race_times"`
			Observations int               `json:"observations"`
			UserID       string            `json:"user_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.Data.VDOT, 40.0)
	assert.Equal(t, 3, resp.Data.Observations)
	assert.Len(t, resp.Data.RaceTimes, 3)
	assert.NotEmpty(t, resp.Data.RaceTimes["5000"])
	assert.Empty(t, resp.Data.UserID, "no store configured")
}

func TestAnalyzeMultipartPublishesToStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	s := newTestServer(t, Options{Store: db})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "activities.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(history(true)))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := do(t, s, http.MethodPost, "/v1/analyze", mw.FormDataContentType(), buf.Bytes(),
		map[string]string{UserIDHeader: "athlete-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			UserID string              `json:"user_id"`
			Store  store.PublishReport `json:"store"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "athlete-1", resp.Data.UserID)
	assert.Greater(t, resp.Data.Store.RunsWritten, 0)
	assert.Zero(t, resp.Data.Store.RunsFailed)

	runs, err := db.Runs(ctx, "athlete-1")
	require.NoError(t, err)
	assert.Len(t, runs, resp.Data.Store.RunsWritten)
}

func TestAnalyzeWithoutRacesReportsSentinel(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/v1/analyze", "text/csv", []byte(history(false)), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.0, resp.Data["vdot"])
	assert.Greater(t, resp.Data["avg_hr"], 140.0)
	assert.NotContains(t, resp.Data, "race_times")
}

func TestAnalyzeErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	cases := []struct {
		name   string
		body   string
		status int
		code   ErrorCode
	}{
		{"empty body", "  \n", http.StatusBadRequest, ErrCodeInvalidUpload},
		{"missing distance", "Activity Date,Activity Type\n\"Jan 1, 2024, 7:00:00 AM\",Run\n", http.StatusUnprocessableEntity, ErrCodeSchemaMissingColumn},
		{"no runs", "Activity Date,Activity Type,Distance,Moving Time\n\"Jan 1, 2024, 7:00:00 AM\",Ride,30000,3600\n", http.StatusUnprocessableEntity, ErrCodeNoRuns},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/analyze", "text/csv", []byte(tc.body), nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			detail := decodeError(t, rec)
			assert.Equal(t, string(tc.code), detail.Code)
			assert.NotEmpty(t, detail.RequestID)
		})
	}
}

func TestAnalyzeRejectsOversizedUpload(t *testing.T) {
	s := newTestServer(t, Options{MaxUploadBytes: 64})
	rec := do(t, s, http.MethodPost, "/v1/analyze", "text/csv", []byte(history(true)), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, string(ErrCodeUploadTooLarge), decodeError(t, rec).Code)
}

func TestForecast(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/v1/forecast?months=6", "text/csv", []byte(history(true)), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			LastVDOT       float64  `json:"last_vdot"`
			PredictedVDOT  *float64 `json:"predicted_vdot"`
			PredictionDate string   `json:"prediction_date"`
			Lower          *float64 `json:"lower_bound_80pct"`
			Upper          *float64 `json:"upper_bound_80pct"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.PredictedVDOT)
	assert.Greater(t, *resp.Data.PredictedVDOT, resp.Data.LastVDOT)
	assert.Equal(t, day0.AddDate(0, 0, 180+183).Format("2006-01-02"), resp.Data.PredictionDate)
	require.NotNil(t, resp.Data.Lower)
	require.NotNil(t, resp.Data.Upper)
	assert.Less(t, *resp.Data.Lower, *resp.Data.Upper)
}

func TestForecastErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/v1/forecast?months=abc", "text/csv", []byte(history(true)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(ErrCodeInvalidQuery), decodeError(t, rec).Code)

	rec = do(t, s, http.MethodPost, "/v1/forecast?months=3&model=prophet", "text/csv", []byte(history(true)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/forecast?months=-1", "text/csv", []byte(history(true)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/forecast?months=3", "text/csv", []byte(history(false)), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, string(ErrCodeInsufficientData), decodeError(t, rec).Code)
}

func TestNormalize(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/v1/normalize?format=parquet", "text/csv", []byte(history(false)), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.apache.parquet", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PAR1")))

	rec = do(t, s, http.MethodPost, "/v1/normalize", "text/csv", []byte(history(false)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "start_date,distance_km"))

	rec = do(t, s, http.MethodPost, "/v1/normalize?format=xlsx", "text/csv", []byte(history(false)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodGet, "/v2/nothing", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}
