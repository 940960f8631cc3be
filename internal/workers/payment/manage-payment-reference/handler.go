package managepaymentreference

import (
	"context"
	"fmt"
	"time"

	"admission-portal/internal/common/camunda"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/observability"
	"admission-portal/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "manage-payment-reference"
)

// ReferenceAdmin is the administrative side of the payment ledger.
type ReferenceAdmin interface {
	Register(ctx context.Context, code string, amount int64, note string) (*models.PaymentReference, error)
	FlagReference(ctx context.Context, code, note string) (*models.PaymentReference, error)
	UnflagReference(ctx context.Context, code, note string) (*models.PaymentReference, error)
}

type Handler struct {
	admin  ReferenceAdmin
	runner *camunda.Runner
	logger logger.Logger
}

func NewHandler(config *Config, admin ReferenceAdmin, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		admin:  admin,
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
	var (
		ref *models.PaymentReference
		err error
	)
	switch input.Action {
	case ActionRegister:
		ref, err = h.admin.Register(ctx, input.Reference, input.Amount, input.Note)
	case ActionFlag:
		ref, err = h.admin.FlagReference(ctx, input.Reference, input.Note)
	case ActionUnflag:
		ref, err = h.admin.UnflagReference(ctx, input.Reference, input.Note)
	default:
		return nil, apperrors.NewValidationError("unknown action", apperrors.FieldError{
			Field:   "action",
			Message: fmt.Sprintf("%q is not one of register, flag, unflag", input.Action),
		})
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("Payment reference updated", map[string]interface{}{
		"action":    input.Action,
		"reference": ref.Reference,
		"status":    ref.Status,
	})
	return &Output{
		Reference: ref.Reference,
		Status:    string(ref.Status),
		Amount:    ref.Amount,
		UpdatedAt: ref.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}
