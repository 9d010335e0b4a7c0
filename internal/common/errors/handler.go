package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// JobAction is what HandleJobError decided to do with a failed job.
type JobAction string

const (
	JobActionFail  JobAction = "fail"
	JobActionThrow JobAction = "throw"
)

// ErrorHandler turns worker errors into fail-with-retries or BPMN throws.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Decide normalizes err and returns the BPMN error plus the action to take.
func (h *ErrorHandler) Decide(err error) (*StandardError, *BPMNError, JobAction) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	if stdErr.Retryable {
		// Zeebe retries the job and raises an incident once retries reach zero.
		return stdErr, bpmnErr, JobActionFail
	}
	return stdErr, bpmnErr, JobActionThrow
}

// HandleJobError fails or throws the job according to Decide.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) JobAction {
	stdErr, bpmnErr, action := h.Decide(err)
	h.logError(job, stdErr, bpmnErr, action)

	switch action {
	case JobActionFail:
		h.failJob(ctx, client, job, bpmnErr)
	default:
		h.throwBPMNError(ctx, client, job, bpmnErr)
	}
	return action
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	retries := job.Retries - 1
	if retries < 0 {
		retries = 0
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage("[" + bpmnErr.Code + "] " + bpmnErr.Message)

	if withVars, err := cmd.VariablesFromString(variablesJSON(bpmnErr)); err == nil {
		if _, sendErr := withVars.Send(ctx); sendErr != nil {
			h.logSendFailure(job, "fail", sendErr)
		}
		return
	}
	if _, sendErr := cmd.Send(ctx); sendErr != nil {
		h.logSendFailure(job, "fail", sendErr)
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if withVars, err := cmd.VariablesFromString(variablesJSON(bpmnErr)); err == nil {
		if _, sendErr := withVars.Send(ctx); sendErr != nil {
			h.logSendFailure(job, "throw", sendErr)
		}
		return
	}
	if _, sendErr := cmd.Send(ctx); sendErr != nil {
		h.logSendFailure(job, "throw", sendErr)
	}
}

func (h *ErrorHandler) logSendFailure(job entities.Job, command string, err error) {
	h.logger.Error("Failed to send job command", map[string]interface{}{
		"jobKey":  job.Key,
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, action JobAction) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"action":           string(action),
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}

func variablesJSON(bpmnErr *BPMNError) string {
	data, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		return "{}"
	}
	return string(data)
}
