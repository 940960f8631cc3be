package finalizesubmission

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-portal/internal/admission/lifecycle"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/models"
	"admission-portal/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandler(t *testing.T) (*Handler, *lifecycle.Manager) {
	t.Helper()
	log := logger.NewTestLogger(t)
	m := lifecycle.NewManager(memory.New(), log,
		lifecycle.WithIDGenerator(&lifecycle.FixedSequence{IDs: []string{"MUST-APP-2026-00042"}}),
	)
	return NewHandler(LoadConfig(), m, log, nil), m
}

func saveStep(t *testing.T, m *lifecycle.Manager, step lifecycle.Step, data string) {
	t.Helper()
	_, err := m.UpsertDraftStep(context.Background(), models.Identity{UserID: 7}, models.ApplicationTypeUndergraduate,
		lifecycle.StepData{Step: step, Data: []byte(data)})
	require.NoError(t, err)
}

func prepareDraft(t *testing.T, m *lifecycle.Manager) {
	saveStep(t, m, lifecycle.StepProgramChoice, `{"firstChoice":"BSc Computer Science"}`)
	saveStep(t, m, lifecycle.StepPayment, `{"paymentReference":"ref-1001"}`)
	saveStep(t, m, lifecycle.StepDeclarations, `{"truthfulInformation":true,"termsAccepted":true,"documentsAuthentic":true}`)
}

func TestHandler_Execute_Success(t *testing.T) {
	handler, m := createTestHandler(t)
	prepareDraft(t, m)

	output, err := handler.Execute(context.Background(), &Input{UserID: 7, ApplicationType: "undergraduate"})
	require.NoError(t, err)
	assert.NotZero(t, output.SubmissionID)
	assert.Equal(t, "MUST-APP-2026-00042", output.ApplicationID)
	assert.Equal(t, "submitted", output.Status)
	assert.Equal(t, "REF-1001", output.PaymentReference)
	assert.NotEmpty(t, output.Faculty)

	_, err = time.Parse(time.RFC3339, output.SubmittedAt)
	assert.NoError(t, err)
}

func TestHandler_Execute_SecondFinalizeIsAlreadySubmitted(t *testing.T) {
	handler, m := createTestHandler(t)
	prepareDraft(t, m)
	ctx := context.Background()

	_, err := handler.Execute(ctx, &Input{UserID: 7, ApplicationType: "undergraduate"})
	require.NoError(t, err)

	_, err = handler.Execute(ctx, &Input{UserID: 7, ApplicationType: "undergraduate"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadySubmitted))

	bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
	assert.Equal(t, "ALREADY_SUBMITTED", bpmn.Code)
	assert.False(t, bpmn.Retryable)
}

func TestHandler_Execute_NoDraft(t *testing.T) {
	handler, _ := createTestHandler(t)

	_, err := handler.Execute(context.Background(), &Input{UserID: 7, ApplicationType: "undergraduate"})
	assert.True(t, errors.Is(err, apperrors.ErrDraftNotFound))
}

func TestHandler_Execute_DeclarationsRequired(t *testing.T) {
	handler, m := createTestHandler(t)
	saveStep(t, m, lifecycle.StepProgramChoice, `{"firstChoice":"BSc Computer Science"}`)

	_, err := handler.Execute(context.Background(), &Input{UserID: 7, ApplicationType: "undergraduate"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
