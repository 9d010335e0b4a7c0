// Package errors provides the structured error taxonomy shared by the dispatch
// pipeline and its workflow integration.
package errors

import (
	"errors"
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
	ErrCodeTemplateNotFound  ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateMalformed ErrorCode = "TEMPLATE_MALFORMED"
	ErrCodeTemplateLookup    ErrorCode = "TEMPLATE_LOOKUP_FAILED"

	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	ErrCodeTransportTierFailed ErrorCode = "TRANSPORT_TIER_FAILED"
	ErrCodeAllTiersExhausted   ErrorCode = "ALL_TIERS_EXHAUSTED"

	ErrCodeLogWriteFailed          ErrorCode = "LOG_WRITE_FAILED"
	ErrCodePreferencesLookupFailed ErrorCode = "PREFERENCES_LOOKUP_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeInputParsingFailed       ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeBusinessRule    ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthentication  ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError unwraps err into a *StandardError if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
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

// NewTemplateNotFoundError reports that no active template carries the name.
func NewTemplateNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "No active template found",
		Details:   fmt.Sprintf("template: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateMalformedError reports an active template lacking required content.
func NewTemplateMalformedError(name, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateMalformed,
		Message:   "Template is missing required content",
		Details:   fmt.Sprintf("template: %s, reason: %s", name, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateLookupError wraps an infrastructure failure while reading templates.
func NewTemplateLookupError(name string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateLookup,
		Message:   "Template store query failed",
		Details:   fmt.Sprintf("template: %s, error: %s", name, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError reports a request that cannot be dispatched as given.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Notification request is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportTierFailedError records one tier's failure.
func NewTransportTierFailedError(tier int, name string, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportTierFailed,
		Message:   fmt.Sprintf("Transport tier %d (%s) failed", tier, name),
		Details:   reason,
		Retryable: true,
		Metadata:  map[string]interface{}{"tier": tier, "transport": name},
		Timestamp: time.Now().UTC(),
	}
}

// NewAllTiersExhaustedError carries the last tier's message for diagnostics.
func NewAllTiersExhaustedError(lastError string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAllTiersExhausted,
		Message:   "All transport tiers failed",
		Details:   lastError,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLogWriteFailedError reports a delivery log insert failure.
func NewLogWriteFailedError(sink string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLogWriteFailed,
		Message:   "Delivery log write failed",
		Details:   fmt.Sprintf("sink: %s, error: %s", sink, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreferencesLookupError reports a failure reading recipient preferences.
func NewPreferencesLookupError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePreferencesLookupFailed,
		Message:   "Recipient preferences lookup failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputParsingError creates a non-retryable job variable parsing error.
func NewInputParsingError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputParsingFailed,
		Message:   "Failed to parse job variables",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable schema validation error.
func NewValidationError(messages []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   strings.Join(messages, "; "),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBusinessRule,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthentication,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the BPMN error codes modelled
// in notification workflows.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeTemplateNotFound:         "TEMPLATE_NOT_FOUND",
	ErrCodeTemplateMalformed:        "TEMPLATE_NOT_FOUND",
	ErrCodeTemplateLookup:           "TEMPLATE_LOOKUP_FAILED",
	ErrCodeInvalidRequest:           "INVALID_REQUEST",
	ErrCodeInputParsingFailed:       "INVALID_REQUEST",
	ErrCodeValidationFailed:         "INVALID_REQUEST",
	ErrCodeTransportTierFailed:      "NOTIFICATION_SEND_FAILED",
	ErrCodeAllTiersExhausted:        "NOTIFICATION_SEND_FAILED",
	ErrCodePreferencesLookupFailed:  "PREFERENCES_LOOKUP_FAILED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeAllTiersExhausted,
		ErrCodeTemplateLookup,
		ErrCodeDatabaseConnectionFailed,
		ErrCodePreferencesLookupFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout:
		return 2

	default:
		return 0
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
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "TRANSPORT") || strings.Contains(codeStr, "TIERS"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "LOG_WRITE"):
		return "AUDIT"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "PREFERENCES"):
		return "DATABASE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSING"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
