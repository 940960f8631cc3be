// Package reconciliation matches verified submissions against the payment
// ledger and claims their reference codes.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-portal/internal/admission/ledger"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/metrics"
	"admission-portal/internal/common/observability"
	"admission-portal/internal/models"
	"admission-portal/internal/store"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4
	DefaultBatchSize   = 500

	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerJob       = "job"
	TriggerHTTP      = "http"
	TriggerCLI       = "cli"
)

// Claimer is the ledger operation a pass drives.
type Claimer interface {
	Claim(ctx context.Context, req ledger.ClaimRequest) (*models.PaymentReference, error)
}

// CandidateResult is the outcome for one submission.
type CandidateResult struct {
	SubmissionID  int64  `json:"submissionId"`
	UserID        int64  `json:"userId"`
	ApplicationID string `json:"applicationId,omitempty"`
	Reference     string `json:"reference"`
	Outcome       string `json:"outcome"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	Line          string `json:"line"`
}

// Result summarises a pass. Every candidate that was not claimed counts as
// an error and appears in ErrorDetail.
type Result struct {
	Trigger     string            `json:"trigger"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt"`
	Processed   int               `json:"processed"`
	Claimed     int               `json:"claimed"`
	Errors      int               `json:"errors"`
	ErrorDetail []CandidateResult `json:"errorDetail"`
	Lines       []string          `json:"lines"`
	Outcomes    map[string]int    `json:"outcomes"`
}

type Engine struct {
	store        store.Store
	claimer      Claimer
	logger       logger.Logger
	obs          *observability.Observability
	concurrency  int
	batchSize    int
	claimTimeout time.Duration
	now          func() time.Time
}

type Option func(*Engine)

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithClaimTimeout bounds each candidate's claim. Zero leaves it unbounded.
func WithClaimTimeout(d time.Duration) Option {
	return func(e *Engine) { e.claimTimeout = d }
}

func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.Store, claimer Claimer, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		claimer:     claimer,
		logger:      log.WithFields(map[string]interface{}{"component": "reconciliation"}),
		concurrency: DefaultConcurrency,
		batchSize:   DefaultBatchSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunPass claims the reference of every candidate. A failing candidate never
// affects another; only an unreachable store aborts the pass.
func (e *Engine) RunPass(ctx context.Context, trigger string) (*Result, error) {
	started := e.now()
	if err := e.store.Ping(ctx); err != nil {
		return nil, e.abort(trigger, started, err)
	}
	candidates, err := e.store.ListReconciliationCandidates(ctx, e.batchSize)
	if err != nil {
		return nil, e.abort(trigger, started, err)
	}

	results := make([]CandidateResult, len(candidates))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = e.reconcile(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	res := summarise(trigger, started, e.now(), results)
	e.record(ctx, res)
	return res, nil
}

// ReconcileSubmission runs the claim for a single submission regardless of
// whether it is still a candidate.
func (e *Engine) ReconcileSubmission(ctx context.Context, trigger string, submissionID int64) (*Result, error) {
	started := e.now()
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewSubmissionNotFoundError(fmt.Sprintf("submissionId: %d", submissionID))
	}
	if err != nil {
		return nil, e.abort(trigger, started, err)
	}
	if !sub.PaymentVerified || sub.PaymentReference == nil || *sub.PaymentReference == "" {
		return nil, apperrors.NewValidationError("submission has no verified payment reference",
			apperrors.FieldError{Field: "submissionId", Message: fmt.Sprintf("%d is not awaiting reconciliation", submissionID)})
	}

	r := e.reconcile(ctx, store.Candidate{
		SubmissionID:  sub.ID,
		UserID:        sub.UserID,
		ApplicationID: sub.ApplicationID,
		Reference:     *sub.PaymentReference,
	})
	res := summarise(trigger, started, e.now(), []CandidateResult{r})
	e.record(ctx, res)
	return res, nil
}

func (e *Engine) reconcile(ctx context.Context, c store.Candidate) CandidateResult {
	out := CandidateResult{
		SubmissionID:  c.SubmissionID,
		UserID:        c.UserID,
		ApplicationID: c.ApplicationID,
		Reference:     c.Reference,
	}
	if e.claimTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.claimTimeout)
		defer cancel()
	}
	_, err := e.claimer.Claim(ctx, ledger.ClaimRequest{
		Reference:    c.Reference,
		UserID:       c.UserID,
		SubmissionID: c.SubmissionID,
		Note:         fmt.Sprintf("auto-matched for submission #%d", c.SubmissionID),
	})
	if err == nil {
		out.Outcome = ledger.OutcomeClaimed
	} else {
		out.Outcome = ledger.OutcomeOf(err)
		out.Code = string(apperrors.CodeOf(err))
		out.Message = err.Error()
	}
	out.Line = line(out)
	return out
}

func line(r CandidateResult) string {
	switch r.Outcome {
	case ledger.OutcomeClaimed:
		return fmt.Sprintf("claimed %s for user %d", r.Reference, r.UserID)
	case ledger.OutcomeNotFound:
		return fmt.Sprintf("%s not found for submission #%d", r.Reference, r.SubmissionID)
	case ledger.OutcomeAlreadyClaimed:
		return fmt.Sprintf("%s already claimed, submission #%d unchanged", r.Reference, r.SubmissionID)
	case ledger.OutcomeFlagged:
		return fmt.Sprintf("%s is flagged, submission #%d skipped", r.Reference, r.SubmissionID)
	default:
		return fmt.Sprintf("%s failed for submission #%d: %s", r.Reference, r.SubmissionID, r.Message)
	}
}

func summarise(trigger string, started, finished time.Time, results []CandidateResult) *Result {
	res := &Result{
		Trigger:     trigger,
		StartedAt:   started,
		FinishedAt:  finished,
		Processed:   len(results),
		ErrorDetail: make([]CandidateResult, 0),
		Lines:       make([]string, 0, len(results)),
		Outcomes:    make(map[string]int),
	}
	for _, r := range results {
		res.Outcomes[r.Outcome]++
		res.Lines = append(res.Lines, r.Line)
		if r.Outcome == ledger.OutcomeClaimed {
			res.Claimed++
			continue
		}
		res.Errors++
		res.ErrorDetail = append(res.ErrorDetail, r)
	}
	return res
}

func (e *Engine) abort(trigger string, started time.Time, err error) error {
	metrics.ReconciliationPasses.WithLabelValues("aborted").Inc()
	e.logger.Error("Reconciliation pass aborted", map[string]interface{}{
		"trigger": trigger,
		"elapsed": e.now().Sub(started).String(),
		"error":   err,
	})
	return apperrors.NewResourceUnavailableError("database", err)
}

func (e *Engine) record(ctx context.Context, res *Result) {
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	outcome := "clean"
	if res.Errors > 0 {
		outcome = "with_errors"
	}
	metrics.ReconciliationPasses.WithLabelValues(outcome).Inc()
	metrics.ReconciliationPassDuration.Observe(elapsed.Seconds())
	e.obs.RecordPass(ctx, res.Trigger, elapsed, res.Outcomes)

	e.logger.Info("Reconciliation pass finished", map[string]interface{}{
		"trigger":   res.Trigger,
		"processed": res.Processed,
		"claimed":   res.Claimed,
		"errors":    res.Errors,
		"elapsed":   elapsed.String(),
	})
	for _, r := range res.ErrorDetail {
		e.logger.Debug(r.Line, map[string]interface{}{
			"submissionId": r.SubmissionID,
			"outcome":      r.Outcome,
			"code":         r.Code,
		})
	}
}
