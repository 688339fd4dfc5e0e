package models

import "time"

type SimilarityMatch struct {
	PeerID            int64   `json:"assignment_id"`
	PeerFilename      string  `json:"filename"`
	PeerDisplayName   string  `json:"user_name"`
	SimilarityPercent float64 `json:"similarity"`
}

type ExternalSource struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Strategy names recorded on a report.
const (
	StrategyTFIDF   = "tfidf_cosine"
	StrategyJaccard = "jaccard"
	StrategyNone    = "none"
)

type PlagiarismReport struct {
	ID                string            `json:"report_id"`
	AssignmentID      int64             `json:"assignment_id"`
	Filename          string            `json:"filename"`
	PlagiarismPercent float64           `json:"plagiarism_percentage"`
	Matches           []SimilarityMatch `json:"matches"`
	ExternalSources   []ExternalSource  `json:"external_sources"`
	Threshold         float64           `json:"threshold"`
	Passed            bool              `json:"passed"`
	CheckedAt         time.Time         `json:"checked_at"`

	Strategy          string `json:"strategy"`
	ComparedCount     int    `json:"compared_count"`
	SkippedCount      int    `json:"skipped_count"`
	ExcludeReferences bool   `json:"exclude_references"`
	ExcludeQuotes     bool   `json:"exclude_quotes"`
	ProcessingTimeMs  int64  `json:"processing_time_ms"`
}
