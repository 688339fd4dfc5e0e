package models

import "time"

type DocumentStatus string

const (
	DocumentStatusNotChecked DocumentStatus = "Not Checked"
	DocumentStatusPending    DocumentStatus = "Pending"
	DocumentStatusChecked    DocumentStatus = "Checked"
	// DocumentStatusFailed marks a document whose own file cannot be read.
	DocumentStatusFailed DocumentStatus = "Failed"
)

func (s DocumentStatus) String() string {
	return string(s)
}

// Document is a submitted file. Content is loaded lazily from blob storage
// by FileKey when it is not already populated.
type Document struct {
	ID            int64          `json:"id"`
	Filename      string         `json:"filename"`
	CourseCode    string         `json:"course_code"`
	SubmitterID   int64          `json:"submitter_id"`
	SubmitterName string         `json:"submitter_name"`
	FileKey       string         `json:"file_key"`
	Status        DocumentStatus `json:"status"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	Content       []byte         `json:"-"`

	// Requested holds the options of the last queued request, nil when the
	// document became pending some other way.
	Requested *CheckOptions `json:"-"`
}

type CheckOptions struct {
	ExcludeReferences bool `json:"exclude_references"`
	ExcludeQuotes     bool `json:"exclude_quotes"`
}

type CourseConfig struct {
	CourseCode          string  `json:"course_code"`
	PlagiarismThreshold float64 `json:"plagiarism_threshold"`
	IncludeReferences   bool    `json:"include_references"`
}

// GradeUpdate is written alongside a report when the auto-grade policy fires.
type GradeUpdate struct {
	TotalMarks    int    `json:"totalmarks"`
	ObtainedMarks int    `json:"obtmarks"`
	AutoGraded    bool   `json:"auto_graded"`
	Comment       string `json:"comment"`
}
