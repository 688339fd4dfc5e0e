package models

type CheckRequest struct {
	ExcludeReferences bool `json:"exclude_references"`
	ExcludeQuotes     bool `json:"exclude_quotes"`
}

type CheckAcceptedResponse struct {
	DocumentID int64  `json:"document_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Version  string            `json:"version"`
	Checks   map[string]string `json:"checks"`
	Uptime   string            `json:"uptime"`
	Strategy string            `json:"primary_strategy"`
}
