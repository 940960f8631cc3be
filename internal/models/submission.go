// internal/models/submission.go
package models

import "time"

type SubmissionStatus string

const (
	StatusSubmitted SubmissionStatus = "submitted"
	StatusReview    SubmissionStatus = "review"
	StatusAccepted  SubmissionStatus = "accepted"
	StatusRejected  SubmissionStatus = "rejected"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusReview, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal statuses carry a decision date and allow no further transitions.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Submission is a finalized application. One per user.
type Submission struct {
	ID               int64            `json:"id"`
	ApplicationID    string           `json:"applicationId"`
	UserID           int64            `json:"userId"`
	DraftID          string           `json:"draftId"`
	ApplicationType  ApplicationType  `json:"applicationType"`
	Faculty          string           `json:"faculty"`
	ProgramChoice    string           `json:"programChoice"`
	ApplicantName    string           `json:"applicantName"`
	Email            string           `json:"email,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Status           SubmissionStatus `json:"status"`
	PaymentReference *string          `json:"paymentReference,omitempty"`
	PaymentVerified  bool             `json:"paymentVerified"`
	DecisionDate     *time.Time       `json:"decisionDate,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}
