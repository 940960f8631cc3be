package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
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

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memory.Store, *events.Recorder) {
	t.Helper()
	st := memory.New()
	rec := &events.Recorder{}
	base := []Option{
		WithPublisher(rec),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewManager(st, logger.NewTestLogger(t), append(base, opts...)...), st, rec
}

func step(t *testing.T, s Step, v interface{}) StepData {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return StepData{Step: s, Data: raw}
}

func acceptAll(t *testing.T) StepData {
	return step(t, StepDeclarations, map[string]bool{
		"truthfulInformation": true,
		"termsAccepted":       true,
		"documentsAuthentic":  true,
	})
}

func TestUpsertDraftStep_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	caller := models.Identity{UserID: 5}

	d, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, step(t, StepPersonalDetails, map[string]string{
		"firstName":   "Neema",
		"lastName":    "Mushi",
		"dateOfBirth": "1998-04-02",
		"gender":      "female",
		"nationality": "Tanzanian",
		"phone":       "+255712000111",
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, 40, d.CompletionPercentage)

	again, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, step(t, StepMotivation, map[string]string{
		"essay": "I want to study geospatial systems.",
	}))
	require.NoError(t, err)
	assert.Equal(t, d.ID, again.ID, "second step must update the same draft")
	assert.Equal(t, 60, again.CompletionPercentage)
	assert.Equal(t, "Neema", again.PersonalDetails.FirstName)
}

func TestUpsertDraftStep_ReplacesCollectionsInIndexOrder(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	caller := models.Identity{UserID: 9}

	_, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, step(t, StepReferees, map[string]interface{}{
		"referees": []map[string]interface{}{
			{"index": 2, "name": "Dr. Kimaro", "institution": "MUST", "email": "kimaro@must.ac.tz", "phone": "+255700000002"},
			{"index": 0, "name": "Prof. Ally"},
		},
	}))
	require.NoError(t, err)

	d, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, step(t, StepReferees, map[string]interface{}{
		"referees": []map[string]interface{}{
			{"index": 1, "name": "Dr. Kimaro", "institution": "MUST", "email": "kimaro@must.ac.tz", "phone": "+255700000002"},
		},
	}))
	require.NoError(t, err)
	require.Len(t, d.Referees, 1)
	assert.Equal(t, 1, d.Referees[0].Index)
}

func TestUpsertDraftStep_Validation(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	tests := []struct {
		name    string
		caller  models.Identity
		appType models.ApplicationType
		data    StepData
	}{
		{"unknown step", models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate, StepData{Step: "hobbies", Data: json.RawMessage(`{}`)}},
		{"bad type", models.Identity{UserID: 1}, "doctorate", StepData{Step: StepMotivation, Data: json.RawMessage(`{}`)}},
		{"anonymous", models.Identity{}, models.ApplicationTypeUndergraduate, StepData{Step: StepMotivation, Data: json.RawMessage(`{}`)}},
		{"unknown field", models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate, StepData{Step: StepMotivation, Data: json.RawMessage(`{"poem":"x"}`)}},
		{"bad date", models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate, StepData{Step: StepPersonalDetails, Data: json.RawMessage(`{"dateOfBirth":"02/04/1998"}`)}},
		{"negative index", models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate, StepData{Step: StepReferees, Data: json.RawMessage(`{"referees":[{"index":-1,"name":"A"}]}`)}},
		{"duplicate index", models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate, StepData{Step: StepReferees, Data: json.RawMessage(`{"referees":[{"index":0,"name":"A"},{"index":0,"name":"B"}]}`)}},
		{"malformed json", models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate, StepData{Step: StepMotivation, Data: json.RawMessage(`{"essay":`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.UpsertDraftStep(ctx, tt.caller, tt.appType, tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestUpsertDraftStep_RejectsUserWithSubmission(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	require.NoError(t, st.InsertSubmission(ctx, &models.Submission{ApplicationID: "MUST-APP-2026-00001", UserID: 3, Status: models.StatusSubmitted}))

	_, err := m.UpsertDraftStep(ctx, models.Identity{UserID: 3}, models.ApplicationTypeUndergraduate, step(t, StepMotivation, map[string]string{"essay": "x"}))
	assert.ErrorIs(t, err, apperrors.ErrAlreadySubmitted)
}

func TestUpsertDraftStep_StorageDown(t *testing.T) {
	m, st, _ := newTestManager(t)
	st.SetUnavailable(true)

	_, err := m.UpsertDraftStep(context.Background(), models.Identity{UserID: 3}, models.ApplicationTypeUndergraduate, step(t, StepMotivation, map[string]string{"essay": "x"}))
	assert.ErrorIs(t, err, apperrors.ErrResourceUnavailable)
}

func TestFinalizeSubmission(t *testing.T) {
	ctx := context.Background()
	m, st, rec := newTestManager(t, WithIDGenerator(&FixedSequence{IDs: []string{"MUST-APP-2026-00042"}}))
	caller := models.Identity{UserID: 5}

	_, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, step(t, StepProgramChoice, map[string]string{"firstChoice": "MSc Computer Science"}))
	require.NoError(t, err)
	_, err = m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, step(t, StepPayment, map[string]string{"paymentReference": "ref-1001"}))
	require.NoError(t, err)

	_, err = m.FinalizeSubmission(ctx, caller, models.ApplicationTypePostgraduate)
	require.ErrorIs(t, err, apperrors.ErrValidation, "declarations not yet accepted")

	_, err = m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, acceptAll(t))
	require.NoError(t, err)

	sub, err := m.FinalizeSubmission(ctx, caller, models.ApplicationTypePostgraduate)
	require.NoError(t, err)
	assert.Equal(t, "MUST-APP-2026-00042", sub.ApplicationID)
	assert.Equal(t, models.StatusSubmitted, sub.Status)
	assert.Equal(t, FacultyComputing, sub.Faculty)
	require.NotNil(t, sub.PaymentReference)
	assert.Equal(t, "REF-1001", *sub.PaymentReference)
	assert.False(t, sub.PaymentVerified)

	_, err = st.GetActiveDraft(ctx, 5, models.ApplicationTypePostgraduate)
	assert.Error(t, err, "draft must be superseded")

	evs := rec.Events()
	require.Len(t, evs, 1)
	fin, ok := evs[0].(events.SubmissionFinalized)
	require.True(t, ok)
	assert.Equal(t, sub.ID, fin.SubmissionID)

	_, err = m.FinalizeSubmission(ctx, caller, models.ApplicationTypePostgraduate)
	assert.ErrorIs(t, err, apperrors.ErrAlreadySubmitted)
}

func TestFinalizeSubmission_NoDraft(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.FinalizeSubmission(context.Background(), models.Identity{UserID: 8}, models.ApplicationTypeUndergraduate)
	assert.ErrorIs(t, err, apperrors.ErrDraftNotFound)
}

func TestFinalizeSubmission_RetriesOnIDCollision(t *testing.T) {
	ctx := context.Background()
	ids := &FixedSequence{IDs: []string{"MUST-APP-2026-00001", "MUST-APP-2026-00001", "MUST-APP-2026-00002"}}
	m, st, _ := newTestManager(t, WithIDGenerator(ids))
	require.NoError(t, st.InsertSubmission(ctx, &models.Submission{ApplicationID: "MUST-APP-2026-00001", UserID: 99, Status: models.StatusSubmitted}))

	caller := models.Identity{UserID: 6}
	_, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypeUndergraduate, acceptAll(t))
	require.NoError(t, err)

	sub, err := m.FinalizeSubmission(ctx, caller, models.ApplicationTypeUndergraduate)
	require.NoError(t, err)
	assert.Equal(t, "MUST-APP-2026-00002", sub.ApplicationID)
}

func TestFinalizeSubmission_ExhaustsIDAttempts(t *testing.T) {
	ctx := context.Background()
	m, st, rec := newTestManager(t,
		WithIDGenerator(&FixedSequence{IDs: []string{"MUST-APP-2026-00001"}}),
		WithMaxIDAttempts(3),
	)
	require.NoError(t, st.InsertSubmission(ctx, &models.Submission{ApplicationID: "MUST-APP-2026-00001", UserID: 99, Status: models.StatusSubmitted}))

	caller := models.Identity{UserID: 6}
	_, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypeUndergraduate, acceptAll(t))
	require.NoError(t, err)

	_, err = m.FinalizeSubmission(ctx, caller, models.ApplicationTypeUndergraduate)
	assert.ErrorIs(t, err, apperrors.ErrIDGenerationExhausted)
	assert.Empty(t, rec.Events())

	// the draft survives a failed finalize
	_, err = st.GetActiveDraft(ctx, 6, models.ApplicationTypeUndergraduate)
	assert.NoError(t, err)
}

func TestFinalizeSubmission_ConcurrentSameDraft(t *testing.T) {
	ctx := context.Background()
	m, st, rec := newTestManager(t)
	caller := models.Identity{UserID: 5}
	_, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, acceptAll(t))
	require.NoError(t, err)

	const callers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  []*models.Submission
		fails []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := m.FinalizeSubmission(ctx, caller, models.ApplicationTypePostgraduate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fails = append(fails, err)
				return
			}
			wins = append(wins, sub)
		}()
	}
	wg.Wait()

	require.Len(t, wins, 1)
	require.Len(t, fails, callers-1)
	for _, err := range fails {
		assert.ErrorIs(t, err, apperrors.ErrAlreadySubmitted)
	}
	assert.Regexp(t, `^MUST-APP-2026-\d{5}$`, wins[0].ApplicationID)

	stored, err := st.GetSubmissionByUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, wins[0].ID, stored.ID)
	assert.Len(t, rec.Events(), 1)
}

func TestUpsertDraftStep_ConcurrentCreationLeavesOneDraft(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	caller := models.Identity{UserID: 12}

	var wg sync.WaitGroup
	ids := make([]string, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypeUndergraduate, step(t, StepMotivation, map[string]string{"essay": "x"}))
			if err == nil {
				ids[i] = d.ID
			} else {
				assert.ErrorIs(t, err, apperrors.ErrDuplicateDraft)
			}
		}(i)
	}
	wg.Wait()

	active, err := st.GetActiveDraft(ctx, 12, models.ApplicationTypeUndergraduate)
	require.NoError(t, err)
	for _, id := range ids {
		if id != "" {
			assert.Equal(t, active.ID, id)
		}
	}
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()
	m, st, rec := newTestManager(t)
	sub := &models.Submission{ApplicationID: "MUST-APP-2026-00007", UserID: 4, Status: models.StatusSubmitted}
	require.NoError(t, st.InsertSubmission(ctx, sub))

	_, err := m.ChangeStatus(ctx, sub.ID, models.StatusAccepted)
	require.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition, "cannot skip review")

	reviewed, err := m.ChangeStatus(ctx, sub.ID, models.StatusReview)
	require.NoError(t, err)
	assert.Nil(t, reviewed.DecisionDate)

	accepted, err := m.ChangeStatus(ctx, sub.ID, models.StatusAccepted)
	require.NoError(t, err)
	require.NotNil(t, accepted.DecisionDate)
	assert.True(t, accepted.DecisionDate.Equal(fixedNow))

	_, err = m.ChangeStatus(ctx, sub.ID, models.StatusRejected)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition, "terminal states have no exits")

	_, err = m.ChangeStatus(ctx, sub.ID, "archived")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = m.ChangeStatus(ctx, 404, models.StatusReview)
	assert.ErrorIs(t, err, apperrors.ErrSubmissionNotFound)

	evs := rec.Events()
	require.Len(t, evs, 2)
	last := evs[1].(events.SubmissionStatusChanged)
	assert.Equal(t, models.StatusReview, last.From)
	assert.Equal(t, models.StatusAccepted, last.To)
}

func TestGetters(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.GetDraft(ctx, models.Identity{UserID: 1}, models.ApplicationTypeUndergraduate)
	assert.ErrorIs(t, err, apperrors.ErrDraftNotFound)
	_, err = m.GetSubmission(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrSubmissionNotFound)
	_, err = m.GetSubmissionForUser(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrSubmissionNotFound)
}

func TestChangeStatus_SerializationFailureIsStorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM submissions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "application_id", "user_id", "draft_id", "application_type", "faculty",
			"program_choice", "applicant_name", "email", "phone", "status", "payment_reference", "payment_verified",
			"decision_date", "created_at", "updated_at",
		}).AddRow(1, "MUST-APP-2026-00001", 7, "d-1", "undergraduate", "Law",
			"Bachelor of Laws", "Neema", "neema@example.com", "0700000000", "submitted", nil, false,
			nil, fixedNow, fixedNow))
	mock.ExpectExec(`UPDATE submissions`).WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	m := NewManager(postgres.New(db), logger.NewTestLogger(t), WithClock(func() time.Time { return fixedNow }))
	_, err = m.ChangeStatus(context.Background(), 1, models.StatusReview)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStorageError, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDraftStep_CompletionNeverDecreases(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	caller := models.Identity{UserID: 21}

	personal := map[string]string{"firstName": "Neema", "lastName": "Mushi"}
	steps := []StepData{
		step(t, StepPersonalDetails, personal),
		step(t, StepPersonalDetails, map[string]string{
			"firstName":   "Neema",
			"lastName":    "Mushi",
			"dateOfBirth": "1998-04-02",
			"gender":      "female",
			"nationality": "Tanzanian",
		}),
		step(t, StepPersonalDetails, map[string]string{
			"firstName":   "Neema",
			"lastName":    "Mushi",
			"dateOfBirth": "1998-04-02",
			"gender":      "female",
			"nationality": "Tanzanian",
			"phone":       "+255712000111",
		}),
		step(t, StepProgramChoice, map[string]string{"firstChoice": "MSc Geoinformatics"}),
		step(t, StepMotivation, map[string]string{"essay": "I want to study geospatial systems."}),
		step(t, StepReferees, map[string]interface{}{
			"referees": []map[string]interface{}{{"index": 0, "name": "Dr. Kimaro"}},
		}),
		step(t, StepReferees, map[string]interface{}{
			"referees": []map[string]interface{}{
				{"index": 0, "name": "Dr. Kimaro", "institution": "MUST", "email": "kimaro@must.ac.tz", "phone": "+255700000002"},
			},
		}),
		acceptAll(t),
	}

	last := 0
	for i, sd := range steps {
		d, err := m.UpsertDraftStep(ctx, caller, models.ApplicationTypePostgraduate, sd)
		require.NoError(t, err, "step %d (%s)", i, sd.Step)
		assert.GreaterOrEqual(t, d.CompletionPercentage, last, "step %d (%s)", i, sd.Step)
		last = d.CompletionPercentage
	}
	assert.Equal(t, 100, last)
}
