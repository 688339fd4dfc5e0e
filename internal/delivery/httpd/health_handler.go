package httpd

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.health))
	for name := range h.health {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.health[name](ctx); err != nil {
				h.logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
				results[i] = "unhealthy: " + err.Error()
				return
			}
			results[i] = "ok"
		}()
	}
	wg.Wait()

	response := models.HealthResponse{
		Status:   "healthy",
		Service:  "similarity-service",
		Version:  h.version,
		Checks:   make(map[string]string, len(names)),
		Uptime:   time.Since(h.startedAt).Round(time.Second).String(),
		Strategy: h.primaryStrategy,
	}
	status := http.StatusOK
	for i, name := range names {
		response.Checks[name] = results[i]
		if results[i] != "ok" {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, response)
}
