package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"admission-portal/internal/models"
)

const draftColumns = `id, user_id, application_type, personal_details, program_choice, motivation,
	work_experiences, referees, declarations, payment_reference, completion_percentage,
	created_at, updated_at, superseded_at`

func (s *Store) GetActiveDraft(ctx context.Context, userID int64, appType models.ApplicationType) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts
		WHERE user_id = $1 AND application_type = $2 AND superseded_at IS NULL`
	d, err := scanDraft(s.q.QueryRowContext(ctx, query, userID, string(appType)))
	if err != nil {
		return nil, translate("get active draft", err)
	}
	return d, nil
}

func (s *Store) InsertDraft(ctx context.Context, d *models.Draft) error {
	cols, err := draftJSON(d)
	if err != nil {
		return err
	}
	query := `INSERT INTO drafts (` + draftColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULL)`
	_, err = s.q.ExecContext(ctx, query,
		d.ID, d.UserID, string(d.ApplicationType),
		cols.personal, cols.program, cols.motivation, cols.work, cols.referees, cols.declarations,
		d.PaymentReference, d.CompletionPercentage, d.CreatedAt, d.UpdatedAt,
	)
	return translate("insert draft", err)
}

func (s *Store) UpdateDraft(ctx context.Context, d *models.Draft) error {
	cols, err := draftJSON(d)
	if err != nil {
		return err
	}
	query := `UPDATE drafts SET
			personal_details = $2, program_choice = $3, motivation = $4,
			work_experiences = $5, referees = $6, declarations = $7,
			payment_reference = $8, completion_percentage = $9, updated_at = $10
		WHERE id = $1 AND superseded_at IS NULL`
	res, err := s.q.ExecContext(ctx, query,
		d.ID, cols.personal, cols.program, cols.motivation, cols.work, cols.referees, cols.declarations,
		d.PaymentReference, d.CompletionPercentage, d.UpdatedAt,
	)
	if err != nil {
		return translate("update draft", err)
	}
	return expectOneRow("update draft", res)
}

func (s *Store) SupersedeDraft(ctx context.Context, draftID string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE drafts SET superseded_at = $2, updated_at = $2 WHERE id = $1 AND superseded_at IS NULL`,
		draftID, at,
	)
	if err != nil {
		return translate("supersede draft", err)
	}
	return expectOneRow("supersede draft", res)
}

type draftColumnsJSON struct {
	personal, program, motivation, work, referees, declarations []byte
}

func draftJSON(d *models.Draft) (*draftColumnsJSON, error) {
	d.SortChildren()
	var (
		out draftColumnsJSON
		err error
	)
	work := d.WorkExperiences
	if work == nil {
		work = []models.WorkExperience{}
	}
	referees := d.Referees
	if referees == nil {
		referees = []models.Referee{}
	}
	for _, f := range []struct {
		dst *[]byte
		v   interface{}
	}{
		{&out.personal, d.PersonalDetails},
		{&out.program, d.ProgramChoice},
		{&out.motivation, d.Motivation},
		{&out.work, work},
		{&out.referees, referees},
		{&out.declarations, d.Declarations},
	} {
		if *f.dst, err = json.Marshal(f.v); err != nil {
			return nil, fmt.Errorf("encode draft: %w", err)
		}
	}
	return &out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraft(row rowScanner) (*models.Draft, error) {
	var (
		d          models.Draft
		appType    string
		cols       draftColumnsJSON
		superseded sql.NullTime
	)
	if err := row.Scan(
		&d.ID, &d.UserID, &appType,
		&cols.personal, &cols.program, &cols.motivation, &cols.work, &cols.referees, &cols.declarations,
		&d.PaymentReference, &d.CompletionPercentage, &d.CreatedAt, &d.UpdatedAt, &superseded,
	); err != nil {
		return nil, err
	}
	d.ApplicationType = models.ApplicationType(appType)
	d.SupersededAt = timePtr(superseded)

	for _, f := range []struct {
		src []byte
		dst interface{}
	}{
		{cols.personal, &d.PersonalDetails},
		{cols.program, &d.ProgramChoice},
		{cols.motivation, &d.Motivation},
		{cols.work, &d.WorkExperiences},
		{cols.referees, &d.Referees},
		{cols.declarations, &d.Declarations},
	} {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("decode draft %s: %w", d.ID, err)
		}
	}
	d.SortChildren()
	return &d, nil
}
