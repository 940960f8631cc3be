// Package lifecycle owns drafts, submissions and the submission status
// machine.
package lifecycle

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

	"github.com/google/uuid"
)

const (
	DefaultMaxIDAttempts = 5
	DefaultIDPrefix      = "MUST-APP"
)

var errApplicationIDInUse = errors.New("application id in use")

type Manager struct {
	store         store.Store
	ids           IDGenerator
	events        events.Publisher
	logger        logger.Logger
	now           func() time.Time
	newDraftID    func() string
	maxIDAttempts int
}

type Option func(*Manager)

func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMaxIDAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxIDAttempts = n
		}
	}
}

func NewManager(st store.Store, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         st,
		ids:           NewRandomSequence(DefaultIDPrefix),
		events:        events.Nop{},
		logger:        log.WithFields(map[string]interface{}{"component": "lifecycle"}),
		now:           time.Now,
		newDraftID:    func() string { return uuid.NewString() },
		maxIDAttempts: DefaultMaxIDAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpsertDraftStep saves one form step, creating the draft on first save,
// and recomputes the completion percentage.
func (m *Manager) UpsertDraftStep(ctx context.Context, id models.Identity, appType models.ApplicationType, sd StepData) (*models.Draft, error) {
	if err := checkCaller(id, appType); err != nil {
		metrics.DraftStepsSaved.WithLabelValues(string(sd.Step), "invalid").Inc()
		return nil, err
	}
	if err := validateStep(sd); err != nil {
		metrics.DraftStepsSaved.WithLabelValues(string(sd.Step), "invalid").Inc()
		return nil, err
	}
	if err := m.ensureNoSubmission(ctx, id.UserID); err != nil {
		metrics.DraftStepsSaved.WithLabelValues(string(sd.Step), outcomeOf(err)).Inc()
		return nil, err
	}

	var saved *models.Draft
	err := m.store.RunInTx(ctx, func(tx store.Store) error {
		now := m.now().UTC()
		d, err := tx.GetActiveDraft(ctx, id.UserID, appType)
		created := false
		switch {
		case errors.Is(err, store.ErrNotFound):
			d = &models.Draft{
				ID:              m.newDraftID(),
				UserID:          id.UserID,
				ApplicationType: appType,
				CreatedAt:       now,
			}
			created = true
		case err != nil:
			return err
		}

		if err := applyStep(d, sd); err != nil {
			return err
		}
		d.CompletionPercentage = CompletionPercentage(d)
		d.UpdatedAt = now

		if created {
			if err := tx.InsertDraft(ctx, d); err != nil {
				if errors.Is(err, store.ErrDraftExists) {
					return apperrors.NewDuplicateDraftError(id.UserID, string(appType))
				}
				return err
			}
		} else if err := tx.UpdateDraft(ctx, d); err != nil {
			return err
		}
		saved = d
		return nil
	})
	if err != nil {
		err = translate("save draft step", err)
		metrics.DraftStepsSaved.WithLabelValues(string(sd.Step), outcomeOf(err)).Inc()
		m.logger.Warn("Draft step not saved", map[string]interface{}{
			"userId": id.UserID,
			"type":   appType,
			"step":   sd.Step,
			"error":  err,
		})
		return nil, err
	}

	metrics.DraftStepsSaved.WithLabelValues(string(sd.Step), "ok").Inc()
	m.logger.Debug("Draft step saved", map[string]interface{}{
		"userId":     id.UserID,
		"draftId":    saved.ID,
		"step":       sd.Step,
		"completion": saved.CompletionPercentage,
	})
	return saved, nil
}

// FinalizeSubmission turns the caller's active draft into a Submission with
// a fresh application id and retires the draft, all in one transaction per
// id attempt.
func (m *Manager) FinalizeSubmission(ctx context.Context, id models.Identity, appType models.ApplicationType) (*models.Submission, error) {
	sub, err := m.finalize(ctx, id, appType)
	if err != nil {
		metrics.SubmissionsFinalized.WithLabelValues(outcomeOf(err)).Inc()
		m.logger.Warn("Finalize rejected", map[string]interface{}{
			"userId": id.UserID,
			"type":   appType,
			"error":  err,
		})
		return nil, err
	}

	metrics.SubmissionsFinalized.WithLabelValues("ok").Inc()
	m.logger.Info("Submission finalized", map[string]interface{}{
		"userId":        sub.UserID,
		"submissionId":  sub.ID,
		"applicationId": sub.ApplicationID,
		"faculty":       sub.Faculty,
	})
	m.events.Publish(ctx, events.SubmissionFinalized{
		SubmissionID:    sub.ID,
		ApplicationID:   sub.ApplicationID,
		UserID:          sub.UserID,
		ApplicationType: sub.ApplicationType,
		Faculty:         sub.Faculty,
		ProgramChoice:   sub.ProgramChoice,
		ApplicantName:   sub.ApplicantName,
		Email:           sub.Email,
		Phone:           sub.Phone,
		FinalizedAt:     sub.CreatedAt,
	})
	return sub, nil
}

func (m *Manager) finalize(ctx context.Context, id models.Identity, appType models.ApplicationType) (*models.Submission, error) {
	if err := checkCaller(id, appType); err != nil {
		return nil, err
	}
	if err := m.ensureNoSubmission(ctx, id.UserID); err != nil {
		return nil, err
	}

	draft, err := m.store.GetActiveDraft(ctx, id.UserID, appType)
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent finalize may have retired the draft since the check above.
		if err := m.ensureNoSubmission(ctx, id.UserID); err != nil {
			return nil, err
		}
		return nil, apperrors.NewDraftNotFoundError(id.UserID, string(appType))
	}
	if err != nil {
		return nil, translate("load draft", err)
	}
	if !draft.Declarations.AllAccepted() {
		return nil, apperrors.NewValidationError("all declarations must be accepted before submitting",
			apperrors.FieldError{Field: "declarations", Message: "truthfulInformation, termsAccepted and documentsAuthentic must be true"})
	}

	for attempt := 1; attempt <= m.maxIDAttempts; attempt++ {
		now := m.now().UTC()
		appID, err := m.ids.Next(ctx, yearOf(now))
		if err != nil {
			return nil, translate("generate application id", err)
		}

		sub := newSubmission(draft, appID, now)
		err = m.store.RunInTx(ctx, func(tx store.Store) error {
			taken, err := tx.ApplicationIDExists(ctx, appID)
			if err != nil {
				return err
			}
			if taken {
				return errApplicationIDInUse
			}
			if err := tx.InsertSubmission(ctx, sub); err != nil {
				return err
			}
			return tx.SupersedeDraft(ctx, draft.ID, now)
		})
		switch {
		case err == nil:
			return sub, nil
		case errors.Is(err, errApplicationIDInUse), errors.Is(err, store.ErrApplicationIDTaken):
			metrics.ApplicationIDCollisions.Inc()
			m.logger.Debug("Application id collision", map[string]interface{}{
				"applicationId": appID,
				"attempt":       attempt,
			})
			continue
		case errors.Is(err, store.ErrUserHasSubmission), errors.Is(err, store.ErrStateChanged):
			return nil, apperrors.NewAlreadySubmittedError(id.UserID)
		default:
			return nil, translate("insert submission", err)
		}
	}
	return nil, apperrors.NewIDGenerationExhaustedError(m.maxIDAttempts)
}

func newSubmission(d *models.Draft, appID string, now time.Time) *models.Submission {
	sub := &models.Submission{
		ApplicationID:   appID,
		UserID:          d.UserID,
		DraftID:         d.ID,
		ApplicationType: d.ApplicationType,
		Faculty:         ClassifyFaculty(d.ProgramChoice.FirstChoice),
		ProgramChoice:   d.ProgramChoice.FirstChoice,
		ApplicantName:   d.PersonalDetails.FullName(),
		Email:           d.PersonalDetails.Email,
		Phone:           d.PersonalDetails.Phone,
		Status:          models.StatusSubmitted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if d.PaymentReference != "" {
		ref := d.PaymentReference
		sub.PaymentReference = &ref
	}
	return sub
}

// ChangeStatus moves a submission one edge along the status machine. The
// write only lands if the row still holds the status that was read.
func (m *Manager) ChangeStatus(ctx context.Context, submissionID int64, to models.SubmissionStatus) (*models.Submission, error) {
	if !to.Valid() {
		return nil, apperrors.NewValidationError("unknown status",
			apperrors.FieldError{Field: "status", Message: fmt.Sprintf("%q is not a submission status", to)})
	}

	var (
		updated *models.Submission
		from    models.SubmissionStatus
	)
	err := m.store.RunInTx(ctx, func(tx store.Store) error {
		sub, err := tx.GetSubmission(ctx, submissionID)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewSubmissionNotFoundError(fmt.Sprintf("submissionId: %d", submissionID))
		}
		if err != nil {
			return err
		}
		from = sub.Status
		if !CanTransition(from, to) {
			return apperrors.NewInvalidStatusTransitionError(string(from), string(to))
		}

		now := m.now().UTC()
		var decision *time.Time
		if to.Terminal() {
			decision = &now
		}
		if err := tx.UpdateSubmissionStatus(ctx, submissionID, from, to, decision, now); err != nil {
			if errors.Is(err, store.ErrStateChanged) {
				return apperrors.NewInvalidStatusTransitionError(string(from), string(to)).
					WithMetadata("reason", "status changed concurrently")
			}
			return err
		}
		sub.Status = to
		sub.UpdatedAt = now
		if decision != nil {
			sub.DecisionDate = decision
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, translate("change status", err)
	}

	metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	m.logger.Info("Submission status changed", map[string]interface{}{
		"submissionId": submissionID,
		"from":         from,
		"to":           to,
	})
	m.events.Publish(ctx, events.SubmissionStatusChanged{
		SubmissionID:  updated.ID,
		ApplicationID: updated.ApplicationID,
		UserID:        updated.UserID,
		From:          from,
		To:            to,
		DecisionDate:  updated.DecisionDate,
		ApplicantName: updated.ApplicantName,
		Email:         updated.Email,
		Phone:         updated.Phone,
		ChangedAt:     updated.UpdatedAt,
	})
	return updated, nil
}

func (m *Manager) GetDraft(ctx context.Context, id models.Identity, appType models.ApplicationType) (*models.Draft, error) {
	if err := checkCaller(id, appType); err != nil {
		return nil, err
	}
	d, err := m.store.GetActiveDraft(ctx, id.UserID, appType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewDraftNotFoundError(id.UserID, string(appType))
	}
	if err != nil {
		return nil, translate("load draft", err)
	}
	return d, nil
}

func (m *Manager) GetSubmission(ctx context.Context, submissionID int64) (*models.Submission, error) {
	sub, err := m.store.GetSubmission(ctx, submissionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewSubmissionNotFoundError(fmt.Sprintf("submissionId: %d", submissionID))
	}
	if err != nil {
		return nil, translate("load submission", err)
	}
	return sub, nil
}

func (m *Manager) GetSubmissionForUser(ctx context.Context, userID int64) (*models.Submission, error) {
	sub, err := m.store.GetSubmissionByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewSubmissionNotFoundError(fmt.Sprintf("userId: %d", userID))
	}
	if err != nil {
		return nil, translate("load submission", err)
	}
	return sub, nil
}

func (m *Manager) ensureNoSubmission(ctx context.Context, userID int64) error {
	_, err := m.store.GetSubmissionByUser(ctx, userID)
	switch {
	case err == nil:
		return apperrors.NewAlreadySubmittedError(userID)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return translate("check existing submission", err)
	}
}

func checkCaller(id models.Identity, appType models.ApplicationType) error {
	var fields []apperrors.FieldError
	if id.UserID <= 0 {
		fields = append(fields, apperrors.FieldError{Field: "userId", Message: "must be a positive id"})
	}
	if !appType.Valid() {
		fields = append(fields, apperrors.FieldError{Field: "applicationType", Message: fmt.Sprintf("%q is not undergraduate or postgraduate", appType)})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("invalid request", fields...)
	}
	return nil
}

// translate maps storage sentinels onto the error taxonomy. Errors that
// already carry a code pass through.
func translate(op string, err error) error {
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	if errors.Is(err, store.ErrUnavailable) {
		return apperrors.NewResourceUnavailableError("database", err)
	}
	return apperrors.NewStorageError(op, err)
}

func outcomeOf(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeValidationFailed:
		return "invalid"
	case apperrors.ErrCodeAlreadySubmitted:
		return "already_submitted"
	case apperrors.ErrCodeDuplicateDraft:
		return "duplicate"
	case apperrors.ErrCodeIDGenerationExhausted:
		return "exhausted"
	case apperrors.ErrCodeDraftNotFound:
		return "not_found"
	default:
		return "error"
	}
}
