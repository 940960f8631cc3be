package claimpaymentreference

type Input struct {
	Reference    string `json:"reference"`
	UserID       int64  `json:"userId"`
	SubmissionID int64  `json:"submissionId,omitempty"`
	Note         string `json:"note,omitempty"`
}

type Output struct {
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Outcome      string `json:"outcome"`
	UsedByUserID int64  `json:"usedByUserId"`
	UsedAt       string `json:"usedAt"` // ISO 8601
}
