package claimpaymentreference

import (
	"context"
	"time"

	"admission-portal/internal/admission/ledger"
	"admission-portal/internal/common/camunda"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/observability"
	"admission-portal/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "claim-payment-reference"
)

type Claimer interface {
	Claim(ctx context.Context, req ledger.ClaimRequest) (*models.PaymentReference, error)
}

// Handler claims a voucher for a user. Not-found, already-claimed and
// flagged references surface as BPMN errors so the process can branch.
type Handler struct {
	claimer Claimer
	runner  *camunda.Runner
	logger  logger.Logger
}

func NewHandler(config *Config, claimer Claimer, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		claimer: claimer,
		runner:  camunda.NewRunner(TaskType, config.Timeout, log, obs),
		logger:  log,
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
	ref, err := h.claimer.Claim(ctx, ledger.ClaimRequest{
		Reference:    input.Reference,
		UserID:       input.UserID,
		SubmissionID: input.SubmissionID,
		Note:         input.Note,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		Reference: ref.Reference,
		Status:    string(ref.Status),
		Outcome:   ledger.OutcomeClaimed,
	}
	if ref.UsedByUserID != nil {
		out.UsedByUserID = *ref.UsedByUserID
	}
	if ref.UsedAt != nil {
		out.UsedAt = ref.UsedAt.UTC().Format(time.RFC3339)
	}
	return out, nil
}
