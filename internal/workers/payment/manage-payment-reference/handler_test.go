package managepaymentreference

import (
	"context"
	"errors"
	"testing"

	"admission-portal/internal/admission/ledger"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandler(t *testing.T) *Handler {
	t.Helper()
	log := logger.NewTestLogger(t)
	return NewHandler(LoadConfig(), ledger.New(memory.New(), log), log, nil)
}

func TestHandler_Execute_RegisterFlagUnflag(t *testing.T) {
	handler := createTestHandler(t)
	ctx := context.Background()

	out, err := handler.Execute(ctx, &Input{Action: ActionRegister, Reference: "ref-77", Amount: 30000})
	require.NoError(t, err)
	assert.Equal(t, "REF-77", out.Reference)
	assert.Equal(t, "unused", out.Status)
	assert.Equal(t, int64(30000), out.Amount)

	out, err = handler.Execute(ctx, &Input{Action: ActionFlag, Reference: "REF-77", Note: "duplicate bank entry"})
	require.NoError(t, err)
	assert.Equal(t, "flagged", out.Status)

	out, err = handler.Execute(ctx, &Input{Action: ActionUnflag, Reference: "REF-77"})
	require.NoError(t, err)
	assert.Equal(t, "unused", out.Status)
}

func TestHandler_Execute_Errors(t *testing.T) {
	handler := createTestHandler(t)
	ctx := context.Background()
	_, err := handler.Execute(ctx, &Input{Action: ActionRegister, Reference: "REF-1", Amount: 100})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   *Input
		wantErr error
	}{
		{"duplicate register", &Input{Action: ActionRegister, Reference: "ref-1", Amount: 100}, apperrors.ErrDuplicateReference},
		{"unflag unused", &Input{Action: ActionUnflag, Reference: "REF-1"}, apperrors.ErrInvalidReferenceState},
		{"flag missing", &Input{Action: ActionFlag, Reference: "REF-404"}, apperrors.ErrReferenceNotFound},
		{"negative amount", &Input{Action: ActionRegister, Reference: "REF-2", Amount: -1}, apperrors.ErrValidation},
		{"unknown action", &Input{Action: "delete", Reference: "REF-1"}, apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Execute(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
