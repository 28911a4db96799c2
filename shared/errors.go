package shared

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryUpstream      ErrorCategory = "upstream"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
)

const (
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamMalformed   = "UPSTREAM_MALFORMED"
	CodeInvalidCaseKey      = "INVALID_CASE_KEY"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewUpstreamError reports a registry call that failed after all attempts or
// returned a response that could not be used.
func NewUpstreamError(operation string, attempts int, cause error) *ServiceError {
	message := fmt.Sprintf("registry operation %s failed after %d attempts", operation, attempts)
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return NewServiceError(ErrorCategoryUpstream, CodeUpstreamUnavailable, message, "isir_registry", operation, true, cause)
}

// NewMalformedResponseError reports a structurally unusable registry response.
func NewMalformedResponseError(operation, reason string) *ServiceError {
	return NewServiceError(ErrorCategoryUpstream, CodeUpstreamMalformed,
		fmt.Sprintf("registry operation %s returned an unusable response: %s", operation, reason),
		"isir_registry", operation, false, nil)
}

// NewFormatError reports malformed user input detected before any remote call.
func NewFormatError(operation, input, expected string) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, CodeInvalidCaseKey,
		fmt.Sprintf("invalid input %q, expected format %s", input, expected),
		"subject_lookup", operation, false, nil)
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// IsUpstreamError reports whether err (or anything it wraps) is an upstream failure.
func IsUpstreamError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr) && serviceErr.Category == ErrorCategoryUpstream
}

// IsFormatError reports whether err is a user input format error.
func IsFormatError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr) && serviceErr.Category == ErrorCategoryValidation
}

// ErrorIsolationHandler is a failure-rate circuit breaker. While open, calls are
// rejected with a SERVICE_UNAVAILABLE error instead of reaching the dependency.
type ErrorIsolationHandler struct {
	mu                  sync.Mutex
	maxFailureRate      float64
	minSamples          int64
	openDuration        time.Duration
	serviceName         string
	circuitBreakerOpen  bool
	failureCount        int64
	successCount        int64
	openedAt            time.Time
	halfOpenAttempts    int
	maxHalfOpenAttempts int
	now                 func() time.Time
}

// NewErrorIsolationHandler creates a new error isolation handler
func NewErrorIsolationHandler(serviceName string, maxFailureRate float64) *ErrorIsolationHandler {
	return &ErrorIsolationHandler{
		maxFailureRate:      maxFailureRate,
		minSamples:          10,
		openDuration:        30 * time.Second,
		serviceName:         serviceName,
		maxHalfOpenAttempts: 3,
		now:                 time.Now,
	}
}

// WithMinSamples overrides the number of calls observed before the breaker may open.
func (h *ErrorIsolationHandler) WithMinSamples(n int64) *ErrorIsolationHandler {
	h.minSamples = n
	return h
}

// RecordSuccess records a successful operation
func (h *ErrorIsolationHandler) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.successCount++
	if !h.circuitBreakerOpen {
		return
	}

	h.halfOpenAttempts++
	if h.halfOpenAttempts >= h.maxHalfOpenAttempts {
		h.circuitBreakerOpen = false
		h.failureCount = 0
		h.successCount = 0
		h.halfOpenAttempts = 0

		logrus.WithFields(logrus.Fields{
			"service_name": h.serviceName,
			"component":    "ErrorIsolationHandler",
		}).Info("Circuit breaker closed after successful half-open attempts")
	}
}

// RecordFailure records a failed operation
func (h *ErrorIsolationHandler) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failureCount++

	if h.circuitBreakerOpen {
		// failure while half-open: back to a full open period
		h.halfOpenAttempts = 0
		h.openedAt = h.now()
		return
	}

	totalOperations := h.failureCount + h.successCount
	if totalOperations < h.minSamples {
		return
	}

	currentFailureRate := float64(h.failureCount) / float64(totalOperations)
	if currentFailureRate > h.maxFailureRate {
		h.circuitBreakerOpen = true
		h.halfOpenAttempts = 0
		h.openedAt = h.now()

		logrus.WithFields(logrus.Fields{
			"service_name":     h.serviceName,
			"component":        "ErrorIsolationHandler",
			"failure_rate":     currentFailureRate,
			"max_failure_rate": h.maxFailureRate,
			"failure_count":    h.failureCount,
			"success_count":    h.successCount,
		}).Warn("Circuit breaker opened due to high failure rate")
	}
}

// IsCircuitBreakerOpen returns whether calls are currently rejected
func (h *ErrorIsolationHandler) IsCircuitBreakerOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.circuitBreakerOpen {
		return false
	}
	// half-open: let calls through once the open period has elapsed
	return h.now().Sub(h.openedAt) < h.openDuration
}

// Execute runs fn unless the breaker is open.
func (h *ErrorIsolationHandler) Execute(operation string, fn func() error) error {
	if h.IsCircuitBreakerOpen() {
		logrus.WithFields(logrus.Fields{
			"service_name": h.serviceName,
			"operation":    operation,
			"component":    "ErrorIsolationHandler",
		}).Warn("Circuit breaker is open, rejecting call")

		return NewServiceError(
			ErrorCategoryResource,
			CodeServiceUnavailable,
			fmt.Sprintf("Service %s is temporarily unavailable for operation %s", h.serviceName, operation),
			h.serviceName,
			operation,
			true,
			nil,
		)
	}

	if err := fn(); err != nil {
		h.RecordFailure()
		return err
	}

	h.RecordSuccess()
	return nil
}

