// Package errors provides the admission engine error taxonomy and its BPMN mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Lifecycle
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeDuplicateDraft          ErrorCode = "DUPLICATE_DRAFT"
	ErrCodeAlreadySubmitted        ErrorCode = "ALREADY_SUBMITTED"
	ErrCodeIDGenerationExhausted   ErrorCode = "ID_GENERATION_EXHAUSTED"
	ErrCodeDraftNotFound           ErrorCode = "DRAFT_NOT_FOUND"
	ErrCodeSubmissionNotFound      ErrorCode = "SUBMISSION_NOT_FOUND"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"

	// Payment ledger
	ErrCodeReferenceNotFound       ErrorCode = "REFERENCE_NOT_FOUND"
	ErrCodeReferenceAlreadyClaimed ErrorCode = "REFERENCE_ALREADY_CLAIMED"
	ErrCodeReferenceFlagged        ErrorCode = "REFERENCE_FLAGGED"
	ErrCodeDuplicateReference      ErrorCode = "DUPLICATE_REFERENCE"
	ErrCodeInvalidReferenceState   ErrorCode = "INVALID_REFERENCE_STATE"

	// Infrastructure
	ErrCodeStorageError        ErrorCode = "STORAGE_ERROR"
	ErrCodeResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying storage or transport error, if any.
func (e *StandardError) Unwrap() error { return e.cause }

// Is matches any *StandardError carrying the same code, so callers can
// compare against the exported sentinels below.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation              = &StandardError{Code: ErrCodeValidationFailed}
	ErrDuplicateDraft          = &StandardError{Code: ErrCodeDuplicateDraft}
	ErrAlreadySubmitted        = &StandardError{Code: ErrCodeAlreadySubmitted}
	ErrIDGenerationExhausted   = &StandardError{Code: ErrCodeIDGenerationExhausted}
	ErrDraftNotFound           = &StandardError{Code: ErrCodeDraftNotFound}
	ErrSubmissionNotFound      = &StandardError{Code: ErrCodeSubmissionNotFound}
	ErrInvalidStatusTransition = &StandardError{Code: ErrCodeInvalidStatusTransition}
	ErrReferenceNotFound       = &StandardError{Code: ErrCodeReferenceNotFound}
	ErrReferenceAlreadyClaimed = &StandardError{Code: ErrCodeReferenceAlreadyClaimed}
	ErrReferenceFlagged        = &StandardError{Code: ErrCodeReferenceFlagged}
	ErrDuplicateReference      = &StandardError{Code: ErrCodeDuplicateReference}
	ErrInvalidReferenceState   = &StandardError{Code: ErrCodeInvalidReferenceState}
	ErrStorage                 = &StandardError{Code: ErrCodeStorageError}
	ErrResourceUnavailable     = &StandardError{Code: ErrCodeResourceUnavailable}
)

// AsStandard extracts a *StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError creates a non-retryable validation error listing each offending field.
func NewValidationError(message string, fields ...FieldError) *StandardError {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	e := &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   message,
		Details:   strings.Join(parts, "; "),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
	if len(fields) > 0 {
		e.WithMetadata("fields", fields)
	}
	return e
}

// NewDuplicateDraftError is returned to the loser of a concurrent draft creation.
func NewDuplicateDraftError(userID int64, appType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateDraft,
		Message:   "A draft already exists for this application type",
		Details:   fmt.Sprintf("userId: %d, applicationType: %s", userID, appType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadySubmittedError is returned when a user already holds a submission.
func NewAlreadySubmittedError(userID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadySubmitted,
		Message:   "User has already submitted an application",
		Details:   fmt.Sprintf("userId: %d", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIDGenerationExhaustedError is returned when no free application id was found.
func NewIDGenerationExhaustedError(attempts int) *StandardError {
	return &StandardError{
		Code:      ErrCodeIDGenerationExhausted,
		Message:   "Could not allocate a unique application id",
		Details:   fmt.Sprintf("attempts: %d", attempts),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDraftNotFoundError(userID int64, appType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDraftNotFound,
		Message:   "Draft not found",
		Details:   fmt.Sprintf("userId: %d, applicationType: %s", userID, appType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSubmissionNotFoundError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubmissionNotFound,
		Message:   "Submission not found",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidStatusTransitionError rejects a move outside submitted→review→accepted|rejected.
func NewInvalidStatusTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidStatusTransition,
		Message:   "Status transition not allowed",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewReferenceNotFoundError(reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReferenceNotFound,
		Message:   "Payment reference not found",
		Details:   fmt.Sprintf("reference: %s", reference),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewReferenceAlreadyClaimedError(reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReferenceAlreadyClaimed,
		Message:   "Payment reference already claimed",
		Details:   fmt.Sprintf("reference: %s", reference),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewReferenceFlaggedError(reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReferenceFlagged,
		Message:   "Payment reference is flagged",
		Details:   fmt.Sprintf("reference: %s", reference),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDuplicateReferenceError(reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateReference,
		Message:   "Payment reference already registered",
		Details:   fmt.Sprintf("reference: %s", reference),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidReferenceStateError rejects flag/unflag from an unexpected status.
func NewInvalidReferenceStateError(reference, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidReferenceState,
		Message:   "Payment reference is not in a state that allows this change",
		Details:   fmt.Sprintf("reference: %s, status: %s", reference, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError wraps a transient storage failure. Retryable.
func NewStorageError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageError,
		Message:   "Storage operation failed",
		Details:   fmt.Sprintf("op: %s, error: %v", op, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewResourceUnavailableError signals storage cannot be reached at all.
func NewResourceUnavailableError(resource string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceUnavailable,
		Message:   fmt.Sprintf("Resource '%s' unavailable", resource),
		Details:   fmt.Sprintf("%v", err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:        "VALIDATION_FAILED",
	ErrCodeDuplicateDraft:          "DUPLICATE_DRAFT",
	ErrCodeAlreadySubmitted:        "ALREADY_SUBMITTED",
	ErrCodeIDGenerationExhausted:   "ID_GENERATION_EXHAUSTED",
	ErrCodeDraftNotFound:           "DRAFT_NOT_FOUND",
	ErrCodeSubmissionNotFound:      "SUBMISSION_NOT_FOUND",
	ErrCodeInvalidStatusTransition: "INVALID_STATUS_TRANSITION",
	ErrCodeReferenceNotFound:       "REFERENCE_NOT_FOUND",
	ErrCodeReferenceAlreadyClaimed: "REFERENCE_ALREADY_CLAIMED",
	ErrCodeReferenceFlagged:        "REFERENCE_FLAGGED",
	ErrCodeDuplicateReference:      "DUPLICATE_REFERENCE",
	ErrCodeInvalidReferenceState:   "INVALID_REFERENCE_STATE",
	ErrCodeStorageError:            "STORAGE_ERROR",
	ErrCodeResourceUnavailable:     "RESOURCE_UNAVAILABLE",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageError:
		return 3
	case ErrCodeResourceUnavailable:
		return 2
	default:
		return 0 // business errors are never retried
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REFERENCE"):
		return "LEDGER"
	case strings.Contains(codeStr, "DRAFT") || strings.Contains(codeStr, "SUBMI") || strings.Contains(codeStr, "ID_GENERATION"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "RESOURCE"):
		return "STORAGE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
