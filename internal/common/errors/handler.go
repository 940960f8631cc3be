package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler turns a failed job into a Zeebe command. Transient storage
// failures fail the job so the broker retries it after a backoff; every
// other error is thrown as a BPMN error for the process to catch.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// RetryBackoff is how long the broker waits before re-activating a job
// failed with code.
func RetryBackoff(code ErrorCode) time.Duration {
	switch code {
	case ErrCodeStorageError:
		return 2 * time.Second
	case ErrCodeResourceUnavailable:
		return 15 * time.Second
	default:
		return 0
	}
}

// HandleJobError reports err for job.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	retriesLeft := remainingRetries(job, bpmnErr.Retries)
	h.logError(job, stdErr, bpmnErr, retriesLeft)

	if bpmnErr.Retries > 0 && retriesLeft >= 0 {
		h.failJob(ctx, client, job, stdErr.Code, bpmnErr, retriesLeft)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

// Normalize ensures we always have a StandardError
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// remainingRetries spends one of the job's retries, capped at the code's
// budget. -1 means the job has none left.
func remainingRetries(job entities.Job, budget int) int {
	if budget <= 0 || job.ActivatedJob == nil {
		return -1
	}
	left := int(job.GetRetries()) - 1
	if left > budget {
		left = budget
	}
	return left
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, code ErrorCode, bpmnErr *BPMNError, retries int) {
	cmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(int32(retries)).
		ErrorMessage(bpmnErr.Message).
		RetryBackoff(RetryBackoff(code))

	varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err == nil {
		if withVars, verr := cmd.VariablesFromString(string(varsJSON)); verr == nil {
			_, err = withVars.Send(ctx)
			h.logSendError("fail", job, err)
			return
		}
	}
	_, err = cmd.Send(ctx)
	h.logSendError("fail", job, err)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.GetKey()).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err == nil {
		if withVars, verr := cmd.VariablesFromString(string(varsJSON)); verr == nil {
			_, err = withVars.Send(ctx)
			h.logSendError("throw", job, err)
			return
		}
	}
	_, err = cmd.Send(ctx)
	h.logSendError("throw", job, err)
}

func (h *ErrorHandler) logSendError(command string, job entities.Job, err error) {
	if err == nil {
		return
	}
	h.logger.Warn("Failed to send job command", map[string]interface{}{
		"command": command,
		"jobKey":  job.GetKey(),
		"jobType": job.GetType(),
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, retriesLeft int) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":          job.GetKey(),
		"jobType":         job.GetType(),
		"errorCode":       string(stdErr.Code),
		"bpmnErrorCode":   bpmnErr.Code,
		"message":         bpmnErr.Message,
		"details":         stdErr.Details,
		"retryable":       stdErr.Retryable,
		"retriesLeft":     retriesLeft,
		"errorCategory":   GetErrorCategory(stdErr.Code),
		"processInstance": job.GetProcessInstanceKey(),
	})
}
