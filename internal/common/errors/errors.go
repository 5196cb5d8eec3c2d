// Package errors provides the standardized error taxonomy for the outreach pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Transient failures of external calls; retried by the retry policy.
	ErrCodeTransient ErrorCode = "TRANSIENT"
	// A transient call that kept failing after the retry budget was spent.
	ErrCodeTransientExhausted ErrorCode = "TRANSIENT_EXHAUSTED"
	// No rate-limit token became available within the caller's timeout.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// Enrichment/contact data is missing entirely.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// Enrichment returned some but not all of the requested facts.
	ErrCodePartial ErrorCode = "PARTIAL"
	// Content generation exhausted its retries; the channel message stays absent.
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	// No live send integration for the channel; dispatch falls back to the manual log.
	ErrCodeSendUnavailable ErrorCode = "SEND_UNAVAILABLE"
	// Corrupted persisted state or misconfiguration; aborts the current cycle only.
	ErrCodeFatal ErrorCode = "FATAL"

	ErrCodeSourceFetchFailed  ErrorCode = "SOURCE_FETCH_FAILED"
	ErrCodeDispatchFailed     ErrorCode = "DISPATCH_FAILED"
	ErrCodeStateCorrupted     ErrorCode = "STATE_CORRUPTED"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodeCheckpointFailed   ErrorCode = "CHECKPOINT_FAILED"
	ErrCodeInvalidEngagement  ErrorCode = "INVALID_ENGAGEMENT_EVENT"
	ErrCodeProfileInvalid     ErrorCode = "PROFILE_INVALID"
	ErrCodeChannelUnsupported ErrorCode = "CHANNEL_UNSUPPORTED"
)

// PipelineError is a structured application error carried through the pipeline.
type PipelineError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("PipelineError[%s]: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the ErrorCode from err, or empty string when err is not a PipelineError.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ==========================
// Constructors
// ==========================

// NewTransientError wraps a network/timeout failure that the retry policy may retry.
func NewTransientError(operation string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeTransient,
		Message:   fmt.Sprintf("Transient failure in %s", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewTransientExhaustedError marks a call that failed on every retry attempt.
func NewTransientExhaustedError(operation string, attempts int, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeTransientExhausted,
		Message:   fmt.Sprintf("Operation %s failed after %d attempts", operation, attempts),
		Details:   err.Error(),
		Retryable: false,
		Metadata:  map[string]interface{}{"attempts": attempts},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRateLimitedError reports that no token was available before the caller's deadline.
func NewRateLimitedError(channel string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRateLimited,
		Message:   "Rate limit token unavailable before deadline",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports missing enrichment or contact data; never fatal.
func NewNotFoundError(what, details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", what),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPartialError reports incomplete enrichment data; the pipeline continues.
func NewPartialError(what, details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodePartial,
		Message:   fmt.Sprintf("Partial data for %s", what),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError marks a channel whose content generation was exhausted.
func NewGenerationFailedError(channel string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Content generation failed",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSendUnavailableError marks a channel without a live send integration.
func NewSendUnavailableError(channel string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSendUnavailable,
		Message:   "No live send integration for channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourceFetchFailedError marks one discovery source that produced no results.
func NewSourceFetchFailedError(sourceID string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSourceFetchFailed,
		Message:   "Discovery source fetch failed",
		Details:   fmt.Sprintf("source: %s, error: %v", sourceID, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewDispatchFailedError marks a live send that failed after retry.
func NewDispatchFailedError(channel string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeDispatchFailed,
		Message:   "Message dispatch failed",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStateCorruptedError marks unreadable persisted state; fatal for the cycle.
func NewStateCorruptedError(details string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeStateCorrupted,
		Message:   "Persisted state is corrupted",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidTransitionError marks a lifecycle transition the state machine forbids.
func NewInvalidTransitionError(from, to string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Lifecycle transition not allowed",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCheckpointFailedError marks a progress write that did not land.
func NewCheckpointFailedError(cycleID string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeCheckpointFailed,
		Message:   "Cycle checkpoint failed",
		Details:   fmt.Sprintf("cycle: %s, error: %v", cycleID, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidEngagementError marks an inbound engagement payload that failed validation.
func NewInvalidEngagementError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInvalidEngagement,
		Message:   "Engagement event payload invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileInvalidError marks persona profile misconfiguration; fatal at startup.
func NewProfileInvalidError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeProfileInvalid,
		Message:   "Persona profile configuration invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnsupportedError marks an attempt to use a channel outside the closed set.
func NewChannelUnsupportedError(channel string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeChannelUnsupported,
		Message:   "Channel is not supported",
		Details:   channel,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFatalError marks misconfiguration or corrupted state that aborts the cycle.
func NewFatalError(message string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeFatal,
		Message:   message,
		Details:   fmt.Sprintf("%v", err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// Retry / classification helpers
// ==========================

// GetRetryCount returns the retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTransient,
		ErrCodeSourceFetchFailed,
		ErrCodeDispatchFailed,
		ErrCodeCheckpointFailed:
		return 3

	case ErrCodeRateLimited:
		return 1 // Backed off by the limiter itself, not the retry wrapper.

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsFatal reports whether the error must abort the current cycle.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeFatal, ErrCodeStateCorrupted, ErrCodeProfileInvalid:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TRANSIENT") || strings.Contains(codeStr, "RATE"):
		return "BACKOFF"
	case strings.Contains(codeStr, "SOURCE"):
		return "DISCOVERY"
	case strings.Contains(codeStr, "GENERATION"):
		return "GENERATION"
	case strings.Contains(codeStr, "DISPATCH") || strings.Contains(codeStr, "SEND"):
		return "DISPATCH"
	case strings.Contains(codeStr, "STATE") || strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "CHECKPOINT"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "PARTIAL"):
		return "ENRICHMENT"
	case strings.Contains(codeStr, "FATAL") || strings.Contains(codeStr, "PROFILE"):
		return "FATAL"
	default:
		return "OTHER"
	}
}
