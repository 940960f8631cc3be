package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"admission-portal/internal/common/config"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/metrics"
	"admission-portal/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

const defaultJobTimeout = 30 * time.Second

// JobHandler processes jobs of one task type.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// StartWorker opens a job worker for taskType. It returns nil when the
// worker is disabled in configuration.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler JobHandler, log logger.Logger) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("Worker disabled", nil)
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("Worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return &Worker{worker: jobWorker, logger: log, taskType: taskType}
}

// Stop closes the worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	if w == nil {
		return
	}
	w.logger.Info("Stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

// Runner drives a single job: execute, then complete it with the output
// variables or hand the error to the ErrorHandler.
type Runner struct {
	taskType string
	timeout  time.Duration
	errors   *apperrors.ErrorHandler
	obs      *observability.Observability
	logger   logger.Logger
}

func NewRunner(taskType string, timeout time.Duration, log logger.Logger, obs *observability.Observability) *Runner {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return &Runner{
		taskType: taskType,
		timeout:  timeout,
		errors:   apperrors.NewErrorHandler(log),
		obs:      obs,
		logger:   log,
	}
}

func (r *Runner) Run(client worker.JobClient, job entities.Job, execute func(ctx context.Context) (interface{}, error)) {
	r.logger.Info("Processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	output, err := execute(ctx)
	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(elapsed.Seconds())
	r.obs.RecordJobDuration(ctx, r.taskType, elapsed)

	if err != nil {
		code := apperrors.CodeOf(err)
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(code)).Inc()
		r.obs.RecordJobProcessed(ctx, r.taskType, "failed")
		r.errors.HandleJobError(ctx, client, job, err)
		return
	}

	if err := r.complete(ctx, client, job, output); err != nil {
		r.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	r.obs.RecordJobProcessed(ctx, r.taskType, "completed")
	r.logger.Info("Job completed successfully", map[string]interface{}{
		"jobKey":   job.Key,
		"duration": elapsed.String(),
	})
}

func (r *Runner) complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	step := client.NewCompleteJobCommand().JobKey(job.Key)
	if output == nil {
		_, err := step.Send(ctx)
		return err
	}
	cmd, err := step.VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("encode output variables: %w", err)
	}
	_, err = cmd.Send(ctx)
	return err
}

// DecodeVariables unmarshals the job variables into v. Malformed variables
// are a validation failure, which the ErrorHandler throws as a BPMN error.
func DecodeVariables(job entities.Job, v interface{}) error {
	if job.Variables == "" {
		return apperrors.NewValidationError("job has no variables")
	}
	if err := json.Unmarshal([]byte(job.Variables), v); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	return nil
}
