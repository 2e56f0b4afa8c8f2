package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/pipeline"
	"github.com/lucasjlepore/vdot-analyzer/store"
	"github.com/lucasjlepore/vdot-analyzer/tabular"
)

// UserIDHeader identifies whose history an upload replaces in the store.
const UserIDHeader = "X-User-ID"

type analyzeResponse struct {
	pipeline.Analysis
	UserID string               `json:"user_id,omitempty"`
	Store  *store.PublishReport `json:"store,omitempty"`
}

type forecastQuery struct {
	Months float64 `validate:"gt=0,lte=60"`
	Model  string  `validate:"omitempty,oneof=blended statistical v1 v2"`
}

type normalizeQuery struct {
	Format string `validate:"omitempty,oneof=csv parquet"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]any{
		"status": "ok",
		"store":  s.sink != nil,
	}})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ds, err := s.prepare(w, r)
	if err != nil {
		Error(w, r, err)
		return
	}

	resp := analyzeResponse{Analysis: pipeline.Summarize(ds)}
	if s.sink != nil {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			userID = uuid.NewString()
		}
		rep := store.Publish(r.Context(), s.sink, userID, ds.Runs, ds.Snapshots, ds.Windows, s.logger)
		resp.UserID = userID
		resp.Store = &rep
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: resp})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := forecastQuery{Model: r.URL.Query().Get("model")}
	months, err := strconv.ParseFloat(r.URL.Query().Get("months"), 64)
	if err != nil {
		Error(w, r, NewAppError(ErrCodeInvalidQuery, "months must be a number", err))
		return
	}
	q.Months = months
	if err := s.validate.Struct(q); err != nil {
		Error(w, r, NewAppError(ErrCodeInvalidQuery, "months must be in (0, 60] and model one of blended|statistical", err))
		return
	}
	model := s.model
	if q.Model != "" {
		if model, err = forecast.ParseModel(q.Model); err != nil {
			Error(w, r, NewAppError(ErrCodeInvalidQuery, err.Error(), err))
			return
		}
	}

	ds, err := s.prepare(w, r)
	if err != nil {
		Error(w, r, err)
		return
	}
	outcome := pipeline.Forecast(ds, q.Months, forecast.Options{Model: model, Now: s.now, Logger: s.logger})
	if outcome.Failure != nil {
		Error(w, r, forecastError(outcome.Failure))
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: outcome.Forecast})
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	q := normalizeQuery{Format: r.URL.Query().Get("format")}
	if err := s.validate.Struct(q); err != nil {
		Error(w, r, NewAppError(ErrCodeInvalidQuery, "format must be csv or parquet", err))
		return
	}
	format, err := tabular.ParseFormat(q.Format)
	if err != nil {
		Error(w, r, NewAppError(ErrCodeInvalidQuery, err.Error(), err))
		return
	}

	body, err := s.upload(w, r)
	if err != nil {
		Error(w, r, err)
		return
	}
	runs, err := activity.NormalizeCSV(body, s.cfg.Normalize)
	if err != nil {
		Error(w, r, err)
		return
	}
	data, err := tabular.MarshalRuns(runs, format)
	if err != nil {
		Error(w, r, fmt.Errorf("encode runs: %w", err))
		return
	}

	contentType := "text/csv"
	if format == tabular.FormatParquet {
		contentType = "application/vnd.apache.parquet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=normalized_runs.%s", format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (*pipeline.Dataset, error) {
	body, err := s.upload(w, r)
	if err != nil {
		return nil, err
	}
	acts, err := activity.ReadCSV(body)
	if err != nil {
		return nil, err
	}
	return pipeline.Prepare(acts, s.cfg)
}

// upload returns the CSV payload from a multipart "file" field or the raw
// request body, bounded by the configured limit.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var data []byte
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, NewAppError(ErrCodeInvalidUpload, `multipart upload must carry a "file" field`, err)
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			return nil, NewAppError(ErrCodeInvalidUpload, "could not read uploaded file", err)
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, NewAppError(ErrCodeInvalidUpload, "could not read request body", err)
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewAppError(ErrCodeInvalidUpload, "upload is empty", nil)
	}
	return bytes.NewReader(data), nil
}
