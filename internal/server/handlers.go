package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	phaseenergy "github.com/flight-assurance/phase-energy"
	"github.com/flight-assurance/phase-energy/internal/archive"
	"github.com/flight-assurance/phase-energy/internal/metrics"
	"github.com/flight-assurance/phase-energy/ulog"
)

const (
	uploadField = "file"
	uploadExt   = ".ulg"

	msgNoFile        = "No file uploaded"
	msgInvalidFormat = "Invalid file format"
	msgTooLarge      = "File too large"
	msgNotFound      = "Report not found"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		s.reject(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if header.Filename == "" || !strings.EqualFold(filepath.Ext(name), uploadExt) {
		s.reject(w, http.StatusBadRequest, msgInvalidFormat)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		s.fail(w, fmt.Errorf("read upload: %w", err))
		return
	}
	metrics.UploadBytes.Observe(float64(len(data)))

	if err := s.saveUpload(name, data); err != nil {
		s.fail(w, err)
		return
	}

	start := time.Now()
	analysis, err := phaseenergy.AnalyzeBytes(data, name, s.analysis)
	if err != nil {
		if isPrecondition(err) {
			metrics.RecordAnalysis(metrics.OutcomeRejected, time.Since(start))
			s.log.Info().Err(err).Str("file", name).Msg("upload rejected")
			s.respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
			return
		}
		metrics.RecordAnalysis(metrics.OutcomeFailed, time.Since(start))
		s.fail(w, err)
		return
	}
	metrics.RecordAnalysis(metrics.OutcomeOK, time.Since(start))

	for _, warning := range analysis.Warnings {
		s.log.Warn().Str("file", name).Msg(warning)
	}

	if s.store != nil {
		id, err := s.store.Save(r.Context(), archive.Entry{
			SourceName:   name,
			SourceSHA256: analysis.SourceSHA256,
			Report:       analysis.Report,
		})
		if err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("archive report")
		} else {
			w.Header().Set("X-Report-ID", id)
		}
	}

	s.log.Info().
		Str("file", name).
		Int("rows", analysis.SurvivingRows).
		Float64("flight_s", analysis.Energy.TotalTime).
		Float64("draw_mah", analysis.Energy.TotalDraw).
		Msg("analysed upload")
	s.respondJSON(w, http.StatusOK, analysis.Report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.reject(w, http.StatusNotFound, msgNotFound)
		return
	}
	entry, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, archive.ErrNotFound) {
		s.reject(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("X-Report-ID", entry.ID)
	s.respondJSON(w, http.StatusOK, entry.Report)
}

// saveUpload keeps a copy of the upload under a uuid prefix.
func (s *Server) saveUpload(name string, data []byte) error {
	if s.cfg.UploadDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	return nil
}

func isPrecondition(err error) bool {
	for _, target := range []error{
		phaseenergy.ErrEmptySeries,
		phaseenergy.ErrMissingField,
		phaseenergy.ErrNoIntervals,
		ulog.ErrInvalidHeader,
		ulog.ErrDatasetNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	if status != http.StatusNotFound {
		metrics.RecordAnalysis(metrics.OutcomeRejected, 0)
	}
	s.respondJSON(w, status, errorBody{Error: msg})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	s.respondJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}
