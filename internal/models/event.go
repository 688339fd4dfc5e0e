package models

import "time"

type PlagiarismCheckRequestedEvent struct {
	DocumentID        int64 `json:"document_id"`
	ExcludeReferences bool  `json:"exclude_references"`
	ExcludeQuotes     bool  `json:"exclude_quotes"`
	Timestamp         int64 `json:"timestamp"`
}

type PlagiarismCheckedEvent struct {
	EventID           string    `json:"event_id"`
	DocumentID        int64     `json:"document_id"`
	ReportID          string    `json:"report_id"`
	PlagiarismPercent float64   `json:"plagiarism_percentage"`
	Threshold         float64   `json:"threshold"`
	Passed            bool      `json:"passed"`
	AutoGraded        bool      `json:"auto_graded"`
	Strategy          string    `json:"strategy"`
	CheckedAt         time.Time `json:"checked_at"`
}
