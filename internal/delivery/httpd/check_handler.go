package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service"
)

func (h *Handler) CheckDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "document_id must be a positive integer")
		return
	}
	req, ok := decodeCheckRequest(w, r)
	if !ok {
		return
	}

	report, err := h.checks.Check(r.Context(), id, req.ExcludeReferences, req.ExcludeQuotes)
	if err != nil {
		h.handleCheckError(w, id, err)
		return
	}

	writeSuccess(w, http.StatusOK, report)
}

func (h *Handler) RequestCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := documentIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "document_id must be a positive integer")
		return
	}
	req, ok := decodeCheckRequest(w, r)
	if !ok {
		return
	}

	if err := h.checks.RequestCheck(r.Context(), id, req.ExcludeReferences, req.ExcludeQuotes); err != nil {
		h.handleCheckError(w, id, err)
		return
	}

	writeSuccess(w, http.StatusAccepted, models.CheckAcceptedResponse{
		DocumentID: id,
		Status:     models.DocumentStatusPending.String(),
		Message:    "Plagiarism check queued",
	})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := documentIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "document_id must be a positive integer")
		return
	}

	report, err := h.checks.GetExistingReport(r.Context(), id)
	if err != nil {
		h.handleCheckError(w, id, err)
		return
	}
	if report == nil {
		h.handleCheckError(w, id, service.ErrReportNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, report)
}

// decodeCheckRequest reads the optional JSON body; query parameters of the
// same name override it.
func decodeCheckRequest(w http.ResponseWriter, r *http.Request) (models.CheckRequest, bool) {
	var req models.CheckRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return req, false
		}
	}
	if v := getBoolQueryParam(r, "exclude_references"); v != nil {
		req.ExcludeReferences = *v
	}
	if v := getBoolQueryParam(r, "exclude_quotes"); v != nil {
		req.ExcludeQuotes = *v
	}
	return req, true
}

func (h *Handler) handleCheckError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDocumentID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, service.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "Report not found for this document")
	case errors.Is(err, service.ErrTargetExtraction):
		writeError(w, http.StatusUnprocessableEntity, "Could not extract text from the document")
	case errors.Is(err, service.ErrQueueUnavailable):
		h.logger.Warn().Err(err).Int64("document_id", id).Msg("Check queue unavailable")
		writeError(w, http.StatusServiceUnavailable, "Check queue unavailable, document left pending")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Plagiarism check timed out")
	default:
		h.logger.Error().Err(err).Int64("document_id", id).Msg("Plagiarism check failed")
		writeError(w, http.StatusInternalServerError, "Failed to check document")
	}
}
