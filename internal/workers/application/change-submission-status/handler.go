package changesubmissionstatus

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
	TaskType = "change-submission-status"
)

type StatusChanger interface {
	ChangeStatus(ctx context.Context, submissionID int64, to models.SubmissionStatus) (*models.Submission, error)
}

type Handler struct {
	submissions StatusChanger
	runner      *camunda.Runner
	logger      logger.Logger
}

func NewHandler(config *Config, submissions StatusChanger, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		submissions: submissions,
		runner:      camunda.NewRunner(TaskType, config.Timeout, log, obs),
		logger:      log,
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
	sub, err := h.submissions.ChangeStatus(ctx, input.SubmissionID, models.SubmissionStatus(input.Status))
	if err != nil {
		return nil, err
	}

	out := &Output{
		SubmissionID:  sub.ID,
		ApplicationID: sub.ApplicationID,
		Status:        string(sub.Status),
		NextStatuses:  []string{},
	}
	if sub.DecisionDate != nil {
		out.DecisionDate = sub.DecisionDate.UTC().Format(time.RFC3339)
	}
	for _, s := range lifecycle.NextStatuses(sub.Status) {
		out.NextStatuses = append(out.NextStatuses, string(s))
	}
	return out, nil
}
