package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-portal/internal/models"
	"admission-portal/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func referenceRow(status string, usedBy interface{}) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "reference", "amount", "status", "used_by_user_id", "used_at", "notes", "created_at", "updated_at"}).
		AddRow(1, "REF-1001", 5000000, status, usedBy, nil, "", now, now)
}

func TestStore_InsertDraft_UniqueViolation(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO drafts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "drafts_active_user_type_key"})

	err := s.InsertDraft(context.Background(), &models.Draft{ID: "d1", UserID: 5, ApplicationType: models.ApplicationTypePostgraduate})
	assert.ErrorIs(t, err, store.ErrDraftExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertSubmission_TranslatesConstraints(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"submissions_user_id_key", store.ErrUserHasSubmission},
		{"submissions_application_id_key", store.ErrApplicationIDTaken},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectQuery(`INSERT INTO submissions`).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			err := s.InsertSubmission(context.Background(), &models.Submission{ApplicationID: "MUST-APP-2026-00001", UserID: 5})
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_InsertSubmission_AssignsID(t *testing.T) {
	s, mock := newMock(t)
	ref := "REF-1001"

	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs("MUST-APP-2026-00042", int64(7), "d1", "undergraduate", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "submitted", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	sub := &models.Submission{
		ApplicationID:    "MUST-APP-2026-00042",
		UserID:           7,
		DraftID:          "d1",
		ApplicationType:  models.ApplicationTypeUndergraduate,
		Status:           models.StatusSubmitted,
		PaymentReference: &ref,
	}
	require.NoError(t, s.InsertSubmission(context.Background(), sub))
	assert.Equal(t, int64(42), sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx_ClaimLocksRowAndCommits(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM payment_references WHERE reference = \$1 FOR UPDATE`).
		WithArgs("REF-1001").
		WillReturnRows(referenceRow("unused", nil))
	mock.ExpectExec(`UPDATE payment_references`).
		WithArgs("REF-1001", "used", int64(7), sqlmock.AnyArg(), "auto-matched for submission #1", sqlmock.AnyArg(), "unused").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTx(ctx, func(tx store.Store) error {
		ref, err := tx.GetReferenceForUpdate(ctx, "REF-1001")
		if err != nil {
			return err
		}
		user := int64(7)
		now := time.Now()
		ref.Status = models.ReferenceUsed
		ref.UsedByUserID = &user
		ref.UsedAt = &now
		ref.Notes = "auto-matched for submission #1"
		ref.UpdatedAt = now
		return tx.UpdateReference(ctx, ref, models.ReferenceUnused)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx_RollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RunInTx(context.Background(), func(store.Store) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx_BeginFailureIsUnavailable(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("dial tcp: connection refused"))

	err := s.RunInTx(context.Background(), func(store.Store) error { return nil })
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestStore_UpdateReference_NoRowsIsStateChanged(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE payment_references`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateReference(context.Background(), &models.PaymentReference{Reference: "REF-1", Status: models.ReferenceFlagged}, models.ReferenceUnused)
	assert.ErrorIs(t, err, store.ErrStateChanged)
}

func TestStore_TransientErrorsAreConflicts(t *testing.T) {
	for _, code := range []pq.ErrorCode{"40001", "40P01"} {
		t.Run(string(code), func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectExec(`UPDATE payment_references`).WillReturnError(&pq.Error{Code: code})

			err := s.UpdateReference(context.Background(), &models.PaymentReference{Reference: "REF-1", Status: models.ReferenceUsed}, models.ReferenceUnused)
			assert.ErrorIs(t, err, store.ErrConflict)
			assert.NotErrorIs(t, err, store.ErrStateChanged)
		})
	}
}

func TestStore_GetReference_NotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM payment_references`).
		WithArgs("REF-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetReference(context.Background(), "REF-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_GetReference_ScansClaimant(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM payment_references`).
		WithArgs("REF-1001").
		WillReturnRows(referenceRow("used", int64(7)))

	ref, err := s.GetReference(context.Background(), "REF-1001")
	require.NoError(t, err)
	assert.Equal(t, models.ReferenceUsed, ref.Status)
	require.NotNil(t, ref.UsedByUserID)
	assert.Equal(t, int64(7), *ref.UsedByUserID)
}

func TestStore_ListReconciliationCandidates_UsesAntiJoin(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`NOT EXISTS \(\s*SELECT 1 FROM payment_references pr\s+WHERE pr.reference = s.payment_reference\s+AND pr.status = 'used'`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "application_id", "payment_reference"}).
			AddRow(1, 7, "MUST-APP-2026-00001", "REF-1001").
			AddRow(42, 9, "MUST-APP-2026-00042", "REF-404"))

	got, err := s.ListReconciliationCandidates(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []store.Candidate{
		{SubmissionID: 1, UserID: 7, ApplicationID: "MUST-APP-2026-00001", Reference: "REF-1001"},
		{SubmissionID: 42, UserID: 9, ApplicationID: "MUST-APP-2026-00042", Reference: "REF-404"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetActiveDraft_DecodesChildrenInIndexOrder(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)SELECT .+ FROM drafts\s+WHERE user_id = \$1 AND application_type = \$2 AND superseded_at IS NULL`).
		WithArgs(int64(5), "postgraduate").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "application_type", "personal_details", "program_choice", "motivation",
			"work_experiences", "referees", "declarations", "payment_reference", "completion_percentage",
			"created_at", "updated_at", "superseded_at",
		}).AddRow(
			"d1", 5, "postgraduate",
			[]byte(`{"firstName":"Asha"}`), []byte(`{"firstChoice":"MSc Computer Science"}`), []byte(`{"essay":"x"}`),
			[]byte(`[]`),
			[]byte(`[{"index":2,"name":"B"},{"index":0,"name":"A"}]`),
			[]byte(`{"truthfulInformation":true}`), "", 60, now, now, nil,
		))

	d, err := s.GetActiveDraft(context.Background(), 5, models.ApplicationTypePostgraduate)
	require.NoError(t, err)
	assert.Equal(t, "Asha", d.PersonalDetails.FirstName)
	require.Len(t, d.Referees, 2)
	assert.Equal(t, "A", d.Referees[0].Name)
	assert.Equal(t, "B", d.Referees[1].Name)
	assert.True(t, d.Declarations.TruthfulInformation)
	assert.Nil(t, d.SupersededAt)
}
