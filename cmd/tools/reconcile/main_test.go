package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"admission-portal/internal/admission/ledger"
	"admission-portal/internal/admission/reconciliation"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/models"
	"admission-portal/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*memory.Store, *reconciliation.Engine) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	log := logger.NewTestLogger(t)
	l := ledger.New(st, log)
	_, err := l.Register(ctx, "REF-1001", 50000, "")
	require.NoError(t, err)

	for _, s := range []struct {
		user int64
		app  string
		ref  string
	}{
		{7, "MUST-APP-2026-00007", "REF-1001"},
		{8, "MUST-APP-2026-00008", "REF-404"},
	} {
		sub := &models.Submission{ApplicationID: s.app, UserID: s.user, Status: models.StatusSubmitted}
		require.NoError(t, st.InsertSubmission(ctx, sub))
		require.NoError(t, st.SetPaymentVerification(ctx, sub.ID, s.ref, true))
	}
	return st, reconciliation.NewEngine(st, l, log)
}

func TestRun_PrintsLines(t *testing.T) {
	_, engine := setup(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), engine, options{}, &out, &errOut)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "claimed REF-1001 for user 7")
	assert.Contains(t, out.String(), "processed=2 claimed=1 errors=1")
	assert.Empty(t, errOut.String())
}

func TestRun_StrictFailsOnErrors(t *testing.T) {
	_, engine := setup(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), engine, options{strict: true}, &out, &errOut)
	assert.Equal(t, exitErrors, code)
}

func TestRun_JSON(t *testing.T) {
	_, engine := setup(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), engine, options{asJSON: true}, &out, &errOut)
	require.Equal(t, exitOK, code)

	var res reconciliation.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, reconciliation.TriggerCLI, res.Trigger)
	assert.Equal(t, 1, res.Outcomes[ledger.OutcomeClaimed])
}

func TestRun_SingleSubmission(t *testing.T) {
	_, engine := setup(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), engine, options{submission: 999}, &out, &errOut)
	assert.Equal(t, exitErrors, code)
	assert.Contains(t, errOut.String(), "Error:")
}

func TestRun_UnavailableStore(t *testing.T) {
	st, engine := setup(t)
	st.SetUnavailable(true)
	var out, errOut bytes.Buffer

	code := run(context.Background(), engine, options{}, &out, &errOut)
	assert.Equal(t, exitUnavailable, code)
}

func TestRun_SingleSubmissionJSON(t *testing.T) {
	_, engine := setup(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), engine, options{submission: 1, asJSON: true}, &out, &errOut)
	require.Equal(t, exitOK, code)

	var res reconciliation.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, reconciliation.TriggerCLI, res.Trigger)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Claimed)
}
