package changesubmissionstatus

type Input struct {
	SubmissionID int64  `json:"submissionId"`
	Status       string `json:"status"`
}

type Output struct {
	SubmissionID  int64    `json:"submissionId"`
	ApplicationID string   `json:"applicationId"`
	Status        string   `json:"status"`
	DecisionDate  string   `json:"decisionDate,omitempty"` // ISO 8601, terminal statuses only
	NextStatuses  []string `json:"nextStatuses"`
}
