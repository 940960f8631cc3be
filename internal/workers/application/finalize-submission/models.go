package finalizesubmission

type Input struct {
	UserID          int64    `json:"userId"`
	Roles           []string `json:"roles"`
	ApplicationType string   `json:"applicationType"`
}

type Output struct {
	SubmissionID     int64  `json:"submissionId"`
	ApplicationID    string `json:"applicationId"`
	Status           string `json:"status"`
	Faculty          string `json:"faculty"`
	PaymentReference string `json:"paymentReference,omitempty"`
	SubmittedAt      string `json:"submittedAt"` // ISO 8601
}
