package runreconciliationpass

import "admission-portal/internal/admission/reconciliation"

// Input selects a full pass, or a single submission when SubmissionID is set.
type Input struct {
	SubmissionID int64 `json:"submissionId,omitempty"`
}

type Output struct {
	Trigger     string                           `json:"trigger"`
	Processed   int                              `json:"processed"`
	Claimed     int                              `json:"claimed"`
	Errors      int                              `json:"errors"`
	ErrorDetail []reconciliation.CandidateResult `json:"errorDetail"`
	Outcomes    map[string]int                   `json:"outcomes"`
	Lines       []string                         `json:"lines"`
	FinishedAt  string                           `json:"finishedAt"` // ISO 8601
}
