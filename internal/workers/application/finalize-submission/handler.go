package finalizesubmission

import (
	"context"
	"time"

	"admission-portal/internal/common/camunda"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/observability"
	"admission-portal/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "finalize-submission"
)

// Finalizer turns the caller's active draft into their submission.
type Finalizer interface {
	FinalizeSubmission(ctx context.Context, id models.Identity, appType models.ApplicationType) (*models.Submission, error)
}

type Handler struct {
	finalizer Finalizer
	runner    *camunda.Runner
	logger    logger.Logger
}

func NewHandler(config *Config, finalizer Finalizer, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		finalizer: finalizer,
		runner:    camunda.NewRunner(TaskType, config.Timeout, log, obs),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		var input Input
		if err := camunda.DecodeVariables(job, &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	sub, err := h.finalizer.FinalizeSubmission(ctx,
		models.Identity{UserID: input.UserID, Roles: input.Roles},
		models.ApplicationType(input.ApplicationType),
	)
	if err != nil {
		return nil, err
	}

	out := &Output{
		SubmissionID:  sub.ID,
		ApplicationID: sub.ApplicationID,
		Status:        string(sub.Status),
		Faculty:       sub.Faculty,
		SubmittedAt:   sub.CreatedAt.UTC().Format(time.RFC3339),
	}
	if sub.PaymentReference != nil {
		out.PaymentReference = *sub.PaymentReference
	}
	return out, nil
}
