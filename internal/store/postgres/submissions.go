package postgres

import (
	"context"
	"database/sql"
	"time"

	"admission-portal/internal/models"
)

const submissionColumns = `id, application_id, user_id, draft_id, application_type, faculty,
	program_choice, applicant_name, email, phone, status, payment_reference, payment_verified,
	decision_date, created_at, updated_at`

func (s *Store) GetSubmission(ctx context.Context, id int64) (*models.Submission, error) {
	sub, err := scanSubmission(s.q.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return nil, translate("get submission", err)
	}
	return sub, nil
}

func (s *Store) GetSubmissionByUser(ctx context.Context, userID int64) (*models.Submission, error) {
	sub, err := scanSubmission(s.q.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = $1`, userID))
	if err != nil {
		return nil, translate("get submission by user", err)
	}
	return sub, nil
}

func (s *Store) ApplicationIDExists(ctx context.Context, applicationID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM submissions WHERE application_id = $1)`, applicationID,
	).Scan(&exists)
	if err != nil {
		return false, translate("check application id", err)
	}
	return exists, nil
}

// InsertSubmission never writes payment_verified; that column belongs to the
// payment verification service.
func (s *Store) InsertSubmission(ctx context.Context, sub *models.Submission) error {
	query := `INSERT INTO submissions (
			application_id, user_id, draft_id, application_type, faculty, program_choice,
			applicant_name, email, phone, status, payment_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	var ref sql.NullString
	if sub.PaymentReference != nil {
		ref = sql.NullString{String: *sub.PaymentReference, Valid: true}
	}
	err := s.q.QueryRowContext(ctx, query,
		sub.ApplicationID, sub.UserID, sub.DraftID, string(sub.ApplicationType), sub.Faculty,
		sub.ProgramChoice, sub.ApplicantName, sub.Email, sub.Phone, string(sub.Status), ref,
		sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.ID)
	return translate("insert submission", err)
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, id int64, from, to models.SubmissionStatus, decisionDate *time.Time, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE submissions
			SET status = $3, decision_date = COALESCE($4, decision_date), updated_at = $5
			WHERE id = $1 AND status = $2`,
		id, string(from), string(to), nullTime(decisionDate), at,
	)
	if err != nil {
		return translate("update submission status", err)
	}
	return expectOneRow("update submission status", res)
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub      models.Submission
		appType  string
		status   string
		ref      sql.NullString
		decision sql.NullTime
	)
	if err := row.Scan(
		&sub.ID, &sub.ApplicationID, &sub.UserID, &sub.DraftID, &appType, &sub.Faculty,
		&sub.ProgramChoice, &sub.ApplicantName, &sub.Email, &sub.Phone, &status, &ref,
		&sub.PaymentVerified, &decision, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.ApplicationType = models.ApplicationType(appType)
	sub.Status = models.SubmissionStatus(status)
	if ref.Valid {
		r := ref.String
		sub.PaymentReference = &r
	}
	sub.DecisionDate = timePtr(decision)
	return &sub, nil
}
