package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/events"
	"admission-portal/internal/models"
	"admission-portal/internal/store/memory"
	"admission-portal/internal/store/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 2, 11, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store, *events.Recorder) {
	t.Helper()
	st := memory.New()
	rec := &events.Recorder{}
	l := New(st, logger.NewTestLogger(t),
		WithPublisher(rec),
		WithClock(func() time.Time { return fixedNow }),
	)
	return l, st, rec
}

func TestClaimReference(t *testing.T) {
	ctx := context.Background()
	l, _, rec := newTestLedger(t)
	_, err := l.Register(ctx, "REF-1001", 50000, "bank feed")
	require.NoError(t, err)

	r, err := l.ClaimReference(ctx, " ref-1001 ", 7, "paid at counter")
	require.NoError(t, err)
	assert.Equal(t, models.ReferenceUsed, r.Status)
	require.NotNil(t, r.UsedByUserID)
	assert.Equal(t, int64(7), *r.UsedByUserID)
	require.NotNil(t, r.UsedAt)
	assert.True(t, r.UsedAt.Equal(fixedNow))
	assert.Equal(t, "paid at counter", r.Notes)

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.NameReferenceClaimed, evs[0].Name())
}

func TestClaimReference_SecondClaimLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	l, _, rec := newTestLedger(t)
	_, err := l.Register(ctx, "REF-1001", 50000, "")
	require.NoError(t, err)

	_, err = l.ClaimReference(ctx, "REF-1001", 7, "first")
	require.NoError(t, err)
	before, err := l.GetReference(ctx, "REF-1001")
	require.NoError(t, err)

	_, err = l.ClaimReference(ctx, "REF-1001", 7, "retry")
	assert.ErrorIs(t, err, apperrors.ErrReferenceAlreadyClaimed)
	_, err = l.ClaimReference(ctx, "REF-1001", 8, "someone else")
	assert.ErrorIs(t, err, apperrors.ErrReferenceAlreadyClaimed)

	after, err := l.GetReference(ctx, "REF-1001")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, rec.Events(), 1)
}

func TestClaimReference_Errors(t *testing.T) {
	ctx := context.Background()
	l, st, _ := newTestLedger(t)
	_, err := l.Register(ctx, "REF-2002", 1000, "")
	require.NoError(t, err)
	_, err = l.FlagReference(ctx, "REF-2002", "chargeback")
	require.NoError(t, err)

	tests := []struct {
		name   string
		code   string
		userID int64
		want   error
	}{
		{"not found", "REF-404", 7, apperrors.ErrReferenceNotFound},
		{"flagged", "REF-2002", 7, apperrors.ErrReferenceFlagged},
		{"empty code", "  ", 7, apperrors.ErrValidation},
		{"no user", "REF-2002", 0, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ClaimReference(ctx, tt.code, tt.userID, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	st.SetUnavailable(true)
	_, err = l.ClaimReference(ctx, "REF-2002", 7, "")
	assert.ErrorIs(t, err, apperrors.ErrResourceUnavailable)
	assert.Equal(t, OutcomeStorageError, OutcomeOf(err))
}

func TestClaimReference_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	l, _, rec := newTestLedger(t)
	_, err := l.Register(ctx, "REF-3003", 1000, "")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		already atomic.Int32
	)
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := l.ClaimReference(ctx, "REF-3003", user, "race")
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.CodeOf(err) == apperrors.ErrCodeReferenceAlreadyClaimed:
				already.Add(1)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), already.Load())
	assert.Len(t, rec.Events(), 1)
}

func TestFlagAndUnflag(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	_, err := l.Register(ctx, "REF-5005", 1000, "")
	require.NoError(t, err)

	r, err := l.FlagReference(ctx, "REF-5005", "amount mismatch")
	require.NoError(t, err)
	assert.Equal(t, models.ReferenceFlagged, r.Status)

	_, err = l.FlagReference(ctx, "REF-5005", "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReferenceState)

	r, err = l.UnflagReference(ctx, "REF-5005", "cleared by bursar")
	require.NoError(t, err)
	assert.Equal(t, models.ReferenceUnused, r.Status)

	_, err = l.ClaimReference(ctx, "REF-5005", 3, "")
	require.NoError(t, err)

	_, err = l.FlagReference(ctx, "REF-5005", "too late")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReferenceState)
	_, err = l.UnflagReference(ctx, "REF-5005", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReferenceState)

	_, err = l.FlagReference(ctx, "REF-404", "")
	assert.ErrorIs(t, err, apperrors.ErrReferenceNotFound)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	r, err := l.Register(ctx, "ref-7007", 25000, "")
	require.NoError(t, err)
	assert.Equal(t, "REF-7007", r.Reference)
	assert.Equal(t, models.ReferenceUnused, r.Status)

	_, err = l.Register(ctx, "REF-7007", 25000, "")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateReference)

	_, err = l.Register(ctx, "", -1, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestClaimReference_DeadlockIsStorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM payment_references WHERE reference = \$1 FOR UPDATE`).
		WithArgs("REF-1001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "amount", "status", "used_by_user_id", "used_at", "notes", "created_at", "updated_at"}).
			AddRow(1, "REF-1001", 5000000, "unused", nil, nil, "", now, now))
	mock.ExpectExec(`UPDATE payment_references`).WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	l := New(postgres.New(db), logger.NewTestLogger(t))
	_, err = l.ClaimReference(context.Background(), "REF-1001", 7, "n")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStorageError, apperrors.CodeOf(err))
	assert.Equal(t, OutcomeStorageError, OutcomeOf(err))
	assert.Equal(t, 3, apperrors.ConvertToBPMNError(apperrors.Normalize(err)).Retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
