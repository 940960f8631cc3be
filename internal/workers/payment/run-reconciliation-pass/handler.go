package runreconciliationpass

import (
	"context"
	"time"

	"admission-portal/internal/admission/reconciliation"
	"admission-portal/internal/common/camunda"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "run-reconciliation-pass"
)

type Reconciler interface {
	RunPass(ctx context.Context, trigger string) (*reconciliation.Result, error)
	ReconcileSubmission(ctx context.Context, trigger string, submissionID int64) (*reconciliation.Result, error)
}

// Handler runs a reconciliation pass on demand. Per-candidate failures are
// reported in the output; only an aborted pass fails the job.
type Handler struct {
	reconciler Reconciler
	runner     *camunda.Runner
	logger     logger.Logger
}

func NewHandler(config *Config, reconciler Reconciler, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		reconciler: reconciler,
		runner:     camunda.NewRunner(TaskType, config.Timeout, log, obs),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		var input Input
		if job.Variables != "" && job.Variables != "{}" {
			if err := camunda.DecodeVariables(job, &input); err != nil {
				return nil, err
			}
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	var (
		res *reconciliation.Result
		err error
	)
	if input.SubmissionID > 0 {
		res, err = h.reconciler.ReconcileSubmission(ctx, reconciliation.TriggerJob, input.SubmissionID)
	} else {
		res, err = h.reconciler.RunPass(ctx, reconciliation.TriggerJob)
	}
	if err != nil {
		return nil, err
	}

	return &Output{
		Trigger:     res.Trigger,
		Processed:   res.Processed,
		Claimed:     res.Claimed,
		Errors:      res.Errors,
		ErrorDetail: res.ErrorDetail,
		Outcomes:    res.Outcomes,
		Lines:       res.Lines,
		FinishedAt:  res.FinishedAt.UTC().Format(time.RFC3339),
	}, nil
}
