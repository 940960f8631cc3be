// Package store defines the persistence contracts shared by the Postgres and
// in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"admission-portal/internal/models"
)

// Storage sentinels. Implementations translate driver errors into these;
// services translate these into the domain error taxonomy.
var (
	ErrNotFound           = errors.New("not found")
	ErrDraftExists        = errors.New("active draft already exists")
	ErrUserHasSubmission  = errors.New("user already has a submission")
	ErrApplicationIDTaken = errors.New("application id already taken")
	ErrReferenceExists    = errors.New("payment reference already exists")
	ErrStateChanged       = errors.New("row changed concurrently")
	ErrConflict           = errors.New("transaction conflict")
	ErrUnavailable        = errors.New("storage unavailable")
)

type Drafts interface {
	// GetActiveDraft returns the non-superseded draft for (user, type).
	GetActiveDraft(ctx context.Context, userID int64, appType models.ApplicationType) (*models.Draft, error)
	// InsertDraft returns ErrDraftExists when an active draft already exists.
	InsertDraft(ctx context.Context, d *models.Draft) error
	UpdateDraft(ctx context.Context, d *models.Draft) error
	// SupersedeDraft retires an active draft. ErrStateChanged if it was already retired.
	SupersedeDraft(ctx context.Context, draftID string, at time.Time) error
}

type Submissions interface {
	GetSubmission(ctx context.Context, id int64) (*models.Submission, error)
	GetSubmissionByUser(ctx context.Context, userID int64) (*models.Submission, error)
	ApplicationIDExists(ctx context.Context, applicationID string) (bool, error)
	// InsertSubmission assigns s.ID. Returns ErrUserHasSubmission or
	// ErrApplicationIDTaken on the respective uniqueness violation.
	InsertSubmission(ctx context.Context, s *models.Submission) error
	// UpdateSubmissionStatus moves from -> to only if the row is still in from.
	UpdateSubmissionStatus(ctx context.Context, id int64, from, to models.SubmissionStatus, decisionDate *time.Time, at time.Time) error
}

type References interface {
	GetReference(ctx context.Context, code string) (*models.PaymentReference, error)
	// GetReferenceForUpdate locks the row until the surrounding transaction ends.
	GetReferenceForUpdate(ctx context.Context, code string) (*models.PaymentReference, error)
	InsertReference(ctx context.Context, r *models.PaymentReference) error
	// UpdateReference persists status, claimant, used_at and notes if the row
	// is still in expected.
	UpdateReference(ctx context.Context, r *models.PaymentReference, expected models.ReferenceStatus) error
}

// Candidate is a verified submission whose payment reference has no used ledger entry.
type Candidate struct {
	SubmissionID  int64
	UserID        int64
	ApplicationID string
	Reference     string
}

type Candidates interface {
	ListReconciliationCandidates(ctx context.Context, limit int) ([]Candidate, error)
}

// Store is the full storage handle. Inside RunInTx the callback receives a
// Store bound to the transaction; nested RunInTx calls reuse it.
type Store interface {
	Drafts
	Submissions
	References
	Candidates

	RunInTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
