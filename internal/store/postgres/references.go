package postgres

import (
	"context"
	"database/sql"

	"admission-portal/internal/models"
	"admission-portal/internal/store"
)

const referenceColumns = `id, reference, amount, status, used_by_user_id, used_at, notes, created_at, updated_at`

func (s *Store) GetReference(ctx context.Context, code string) (*models.PaymentReference, error) {
	r, err := scanReference(s.q.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM payment_references WHERE reference = $1`, code))
	if err != nil {
		return nil, translate("get reference", err)
	}
	return r, nil
}

// GetReferenceForUpdate holds a row lock until the enclosing transaction
// ends. Outside a transaction the lock is released immediately.
func (s *Store) GetReferenceForUpdate(ctx context.Context, code string) (*models.PaymentReference, error) {
	r, err := scanReference(s.q.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM payment_references WHERE reference = $1 FOR UPDATE`, code))
	if err != nil {
		return nil, translate("lock reference", err)
	}
	return r, nil
}

func (s *Store) InsertReference(ctx context.Context, r *models.PaymentReference) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO payment_references (reference, amount, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		r.Reference, r.Amount, string(r.Status), r.Notes, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	return translate("insert reference", err)
}

// UpdateReference writes the mutable columns guarded by the expected status.
func (s *Store) UpdateReference(ctx context.Context, r *models.PaymentReference, expected models.ReferenceStatus) error {
	var usedBy sql.NullInt64
	if r.UsedByUserID != nil {
		usedBy = sql.NullInt64{Int64: *r.UsedByUserID, Valid: true}
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE payment_references
			SET status = $2, used_by_user_id = $3, used_at = $4, notes = $5, updated_at = $6
			WHERE reference = $1 AND status = $7`,
		r.Reference, string(r.Status), usedBy, nullTime(r.UsedAt), r.Notes, r.UpdatedAt, string(expected),
	)
	if err != nil {
		return translate("update reference", err)
	}
	return expectOneRow("update reference", res)
}

// ListReconciliationCandidates selects verified submissions whose reference
// has no ledger entry in status used. References missing from the ledger
// are included so the pass can report them.
func (s *Store) ListReconciliationCandidates(ctx context.Context, limit int) ([]store.Candidate, error) {
	query := `SELECT s.id, s.user_id, s.application_id, s.payment_reference
		FROM submissions s
		WHERE s.payment_verified = TRUE
			AND s.payment_reference IS NOT NULL
			AND s.payment_reference <> ''
			AND NOT EXISTS (
				SELECT 1 FROM payment_references pr
				WHERE pr.reference = s.payment_reference
					AND pr.status = 'used'
			)
		ORDER BY s.id
		LIMIT $1`
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, translate("list reconciliation candidates", err)
	}
	defer rows.Close()

	out := make([]store.Candidate, 0)
	for rows.Next() {
		var c store.Candidate
		if err := rows.Scan(&c.SubmissionID, &c.UserID, &c.ApplicationID, &c.Reference); err != nil {
			return nil, translate("scan reconciliation candidate", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate reconciliation candidates", err)
	}
	return out, nil
}

func scanReference(row rowScanner) (*models.PaymentReference, error) {
	var (
		r      models.PaymentReference
		status string
		usedBy sql.NullInt64
		usedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Reference, &r.Amount, &status, &usedBy, &usedAt, &r.Notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = models.ReferenceStatus(status)
	if usedBy.Valid {
		id := usedBy.Int64
		r.UsedByUserID = &id
	}
	r.UsedAt = timePtr(usedAt)
	return &r, nil
}
