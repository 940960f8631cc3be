package upsertdraftstep

import (
	"context"
	"time"

	"admission-portal/internal/admission/lifecycle"
	"admission-portal/internal/common/camunda"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/observability"
	"admission-portal/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "upsert-draft-step"
)

// DraftService saves one form step onto the caller's draft.
type DraftService interface {
	UpsertDraftStep(ctx context.Context, id models.Identity, appType models.ApplicationType, sd lifecycle.StepData) (*models.Draft, error)
}

type Handler struct {
	drafts DraftService
	runner *camunda.Runner
	logger logger.Logger
}

func NewHandler(config *Config, drafts DraftService, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		drafts: drafts,
		runner: camunda.NewRunner(TaskType, config.Timeout, log, obs),
		logger: log,
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
	identity := models.Identity{UserID: input.UserID, Roles: input.Roles}
	step := lifecycle.StepData{Step: lifecycle.Step(input.Step), Data: input.Data}

	draft, err := h.drafts.UpsertDraftStep(ctx, identity, models.ApplicationType(input.ApplicationType), step)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Draft step saved", map[string]interface{}{
		"draftId":    draft.ID,
		"userId":     draft.UserID,
		"step":       input.Step,
		"completion": draft.CompletionPercentage,
	})

	return &Output{
		DraftID:              draft.ID,
		Step:                 input.Step,
		CompletionPercentage: draft.CompletionPercentage,
		UpdatedAt:            draft.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}
