// Package events defines the admission domain events and the post-commit
// dispatcher that fans them out to subscribers.
package events

import (
	"strconv"
	"time"

	"admission-portal/internal/models"
)

const (
	NameReferenceClaimed        = "ReferenceClaimed"
	NameSubmissionFinalized     = "SubmissionFinalized"
	NameSubmissionStatusChanged = "SubmissionStatusChanged"
)

// Event is a fact that has already been committed.
type Event interface {
	Name() string
	// Key groups events for ordering; all events for one applicant share it.
	Key() string
	OccurredAt() time.Time
}

type ReferenceClaimed struct {
	Reference    string    `json:"reference"`
	UserID       int64     `json:"userId"`
	SubmissionID int64     `json:"submissionId,omitempty"`
	Note         string    `json:"note"`
	ClaimedAt    time.Time `json:"claimedAt"`
}

func (e ReferenceClaimed) Name() string          { return NameReferenceClaimed }
func (e ReferenceClaimed) Key() string           { return userKey(e.UserID) }
func (e ReferenceClaimed) OccurredAt() time.Time { return e.ClaimedAt }

type SubmissionFinalized struct {
	SubmissionID    int64                  `json:"submissionId"`
	ApplicationID   string                 `json:"applicationId"`
	UserID          int64                  `json:"userId"`
	ApplicationType models.ApplicationType `json:"applicationType"`
	Faculty         string                 `json:"faculty"`
	ProgramChoice   string                 `json:"programChoice"`
	ApplicantName   string                 `json:"applicantName"`
	Email           string                 `json:"email,omitempty"`
	Phone           string                 `json:"phone,omitempty"`
	FinalizedAt     time.Time              `json:"finalizedAt"`
}

func (e SubmissionFinalized) Name() string          { return NameSubmissionFinalized }
func (e SubmissionFinalized) Key() string           { return userKey(e.UserID) }
func (e SubmissionFinalized) OccurredAt() time.Time { return e.FinalizedAt }

type SubmissionStatusChanged struct {
	SubmissionID  int64                   `json:"submissionId"`
	ApplicationID string                  `json:"applicationId"`
	UserID        int64                   `json:"userId"`
	From          models.SubmissionStatus `json:"from"`
	To            models.SubmissionStatus `json:"to"`
	DecisionDate  *time.Time              `json:"decisionDate,omitempty"`
	ApplicantName string                  `json:"applicantName"`
	Email         string                  `json:"email,omitempty"`
	Phone         string                  `json:"phone,omitempty"`
	ChangedAt     time.Time               `json:"changedAt"`
}

func (e SubmissionStatusChanged) Name() string          { return NameSubmissionStatusChanged }
func (e SubmissionStatusChanged) Key() string           { return userKey(e.UserID) }
func (e SubmissionStatusChanged) OccurredAt() time.Time { return e.ChangedAt }

func userKey(id int64) string { return "user-" + strconv.FormatInt(id, 10) }
