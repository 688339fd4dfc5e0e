package httpd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/metrics"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service"
)

// HealthCheck reports the readiness of one dependency.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	checks          service.PlagiarismService
	health          map[string]HealthCheck
	primaryStrategy string
	version         string
	startedAt       time.Time
	logger          zerolog.Logger
}

func NewHandler(
	checks service.PlagiarismService,
	health map[string]HealthCheck,
	primaryStrategy string,
	version string,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		checks:          checks,
		health:          health,
		primaryStrategy: primaryStrategy,
		version:         version,
		startedAt:       time.Now(),
		logger:          logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1/documents/{document_id}", func(r chi.Router) {
		r.Post("/check", h.CheckDocument)
		r.Post("/check/async", h.RequestCheck)
		r.Get("/report", h.GetReport)
	})
}

func documentIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "document_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func getBoolQueryParam(r *http.Request, key string) *bool {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}

	return &boolValue
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
