// Package ledger tracks bank payment reference codes and the one-time claim
// of each code by an applicant.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/metrics"
	"admission-portal/internal/events"
	"admission-portal/internal/models"
	"admission-portal/internal/store"
)

// Claim outcomes, also used as metric labels and reconciliation outcomes.
const (
	OutcomeClaimed        = "claimed"
	OutcomeNotFound       = "not-found"
	OutcomeAlreadyClaimed = "already-claimed"
	OutcomeFlagged        = "flagged"
	OutcomeStorageError   = "storage-error"
	OutcomeInvalid        = "invalid"
)

type Ledger struct {
	store  store.Store
	events events.Publisher
	logger logger.Logger
	now    func() time.Time
}

type Option func(*Ledger)

func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(st store.Store, log logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  st,
		events: events.Nop{},
		logger: log.WithFields(map[string]interface{}{"component": "ledger"}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ClaimRequest carries the optional submission a claim is made for.
type ClaimRequest struct {
	Reference    string
	UserID       int64
	SubmissionID int64
	Note         string
}

// ClaimReference marks an unused reference as used by userID. The row is
// locked for the read-check-write so exactly one concurrent caller wins.
func (l *Ledger) ClaimReference(ctx context.Context, code string, userID int64, note string) (*models.PaymentReference, error) {
	return l.Claim(ctx, ClaimRequest{Reference: code, UserID: userID, Note: note})
}

func (l *Ledger) Claim(ctx context.Context, req ClaimRequest) (*models.PaymentReference, error) {
	code := models.NormalizeReference(req.Reference)
	if err := checkClaim(code, req.UserID); err != nil {
		metrics.ReferenceClaims.WithLabelValues(OutcomeInvalid).Inc()
		return nil, err
	}

	var claimed *models.PaymentReference
	err := l.store.RunInTx(ctx, func(tx store.Store) error {
		r, err := tx.GetReferenceForUpdate(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewReferenceNotFoundError(code)
		}
		if err != nil {
			return err
		}

		switch r.Status {
		case models.ReferenceUsed:
			return apperrors.NewReferenceAlreadyClaimedError(code)
		case models.ReferenceFlagged:
			return apperrors.NewReferenceFlaggedError(code)
		}

		now := l.now().UTC()
		userID := req.UserID
		r.Status = models.ReferenceUsed
		r.UsedByUserID = &userID
		r.UsedAt = &now
		r.Notes = req.Note
		r.UpdatedAt = now
		if err := tx.UpdateReference(ctx, r, models.ReferenceUnused); err != nil {
			if errors.Is(err, store.ErrStateChanged) {
				return apperrors.NewReferenceAlreadyClaimedError(code)
			}
			return err
		}
		claimed = r
		return nil
	})
	if err != nil {
		err = translate("claim reference", err)
		outcome := OutcomeOf(err)
		metrics.ReferenceClaims.WithLabelValues(outcome).Inc()
		l.logger.Info("Reference not claimed", map[string]interface{}{
			"reference": code,
			"userId":    req.UserID,
			"outcome":   outcome,
		})
		return nil, err
	}

	metrics.ReferenceClaims.WithLabelValues(OutcomeClaimed).Inc()
	l.logger.Info("Reference claimed", map[string]interface{}{
		"reference":    code,
		"userId":       req.UserID,
		"submissionId": req.SubmissionID,
	})
	l.events.Publish(ctx, events.ReferenceClaimed{
		Reference:    claimed.Reference,
		UserID:       req.UserID,
		SubmissionID: req.SubmissionID,
		Note:         req.Note,
		ClaimedAt:    *claimed.UsedAt,
	})
	return claimed, nil
}

// FlagReference holds an unused reference back from claims.
func (l *Ledger) FlagReference(ctx context.Context, code, note string) (*models.PaymentReference, error) {
	return l.move(ctx, code, note, models.ReferenceUnused, models.ReferenceFlagged)
}

// UnflagReference returns a flagged reference to unused.
func (l *Ledger) UnflagReference(ctx context.Context, code, note string) (*models.PaymentReference, error) {
	return l.move(ctx, code, note, models.ReferenceFlagged, models.ReferenceUnused)
}

func (l *Ledger) move(ctx context.Context, code, note string, from, to models.ReferenceStatus) (*models.PaymentReference, error) {
	code = models.NormalizeReference(code)
	if code == "" {
		return nil, apperrors.NewValidationError("reference is required",
			apperrors.FieldError{Field: "reference", Message: "missing"})
	}

	var moved *models.PaymentReference
	err := l.store.RunInTx(ctx, func(tx store.Store) error {
		r, err := tx.GetReferenceForUpdate(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewReferenceNotFoundError(code)
		}
		if err != nil {
			return err
		}
		if r.Status != from {
			return apperrors.NewInvalidReferenceStateError(code, string(r.Status))
		}

		r.Status = to
		r.Notes = note
		r.UpdatedAt = l.now().UTC()
		if err := tx.UpdateReference(ctx, r, from); err != nil {
			if errors.Is(err, store.ErrStateChanged) {
				return apperrors.NewInvalidReferenceStateError(code, "changed concurrently")
			}
			return err
		}
		moved = r
		return nil
	})
	if err != nil {
		return nil, translate(fmt.Sprintf("move reference to %s", to), err)
	}

	l.logger.Info("Reference status changed", map[string]interface{}{
		"reference": code,
		"from":      from,
		"to":        to,
	})
	return moved, nil
}

// Register adds a voucher code from the bank feed as unused.
func (l *Ledger) Register(ctx context.Context, code string, amount int64, note string) (*models.PaymentReference, error) {
	code = models.NormalizeReference(code)
	var fields []apperrors.FieldError
	if code == "" {
		fields = append(fields, apperrors.FieldError{Field: "reference", Message: "missing"})
	}
	if amount < 0 {
		fields = append(fields, apperrors.FieldError{Field: "amount", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError("invalid payment reference", fields...)
	}

	now := l.now().UTC()
	r := &models.PaymentReference{
		Reference: code,
		Amount:    amount,
		Status:    models.ReferenceUnused,
		Notes:     note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.InsertReference(ctx, r); err != nil {
		if errors.Is(err, store.ErrReferenceExists) {
			return nil, apperrors.NewDuplicateReferenceError(code)
		}
		return nil, translate("register reference", err)
	}
	l.logger.Debug("Reference registered", map[string]interface{}{"reference": code, "amount": amount})
	return r, nil
}

func (l *Ledger) GetReference(ctx context.Context, code string) (*models.PaymentReference, error) {
	code = models.NormalizeReference(code)
	r, err := l.store.GetReference(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewReferenceNotFoundError(code)
	}
	if err != nil {
		return nil, translate("get reference", err)
	}
	return r, nil
}

// OutcomeOf names the claim outcome an error represents.
func OutcomeOf(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeReferenceNotFound:
		return OutcomeNotFound
	case apperrors.ErrCodeReferenceAlreadyClaimed:
		return OutcomeAlreadyClaimed
	case apperrors.ErrCodeReferenceFlagged:
		return OutcomeFlagged
	case apperrors.ErrCodeValidationFailed:
		return OutcomeInvalid
	default:
		return OutcomeStorageError
	}
}

func checkClaim(code string, userID int64) error {
	var fields []apperrors.FieldError
	if code == "" {
		fields = append(fields, apperrors.FieldError{Field: "reference", Message: "missing"})
	}
	if userID <= 0 {
		fields = append(fields, apperrors.FieldError{Field: "userId", Message: "must be a positive id"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("invalid claim", fields...)
	}
	return nil
}

func translate(op string, err error) error {
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	if errors.Is(err, store.ErrUnavailable) {
		return apperrors.NewResourceUnavailableError("database", err)
	}
	return apperrors.NewStorageError(op, err)
}
