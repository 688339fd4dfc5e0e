package service

import "errors"

// Errors surfaced by a check. The delivery layer maps them with errors.Is.
var (
	ErrInvalidDocumentID = errors.New("invalid document_id")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrReportNotFound    = errors.New("report not found for this document")

	// the target document could not be turned into text
	ErrTargetExtraction = errors.New("target document extraction failed")

	// the report could not be committed; nothing was applied
	ErrPersistence = errors.New("failed to persist plagiarism report")

	ErrQueueUnavailable = errors.New("check queue unavailable")
)
