package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure. The set is closed; callers switch on it
// exhaustively when mapping failures to job statuses or exit messages.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindAgeRestricted     Kind = "age_restricted"
	KindAccessDenied      Kind = "access_denied"
	KindTransient         Kind = "transient"
	KindResourceExhausted Kind = "resource_exhausted"
	KindValidation        Kind = "validation"
	KindInvalidArgument   Kind = "invalid_argument"
	KindToolFailure       Kind = "tool_failure"
	KindTimeout           Kind = "timeout"
	KindCancelled         Kind = "cancelled"
)

// AllKinds returns every failure kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindNotFound,
		KindAgeRestricted,
		KindAccessDenied,
		KindTransient,
		KindResourceExhausted,
		KindValidation,
		KindInvalidArgument,
		KindToolFailure,
		KindTimeout,
		KindCancelled,
	}
}

// Sub-reasons carried by KindNotFound errors.
const (
	ReasonUnavailable   = "unavailable"
	ReasonPrivate       = "private"
	ReasonDeleted       = "deleted"
	ReasonRegionBlocked = "region_blocked"
)

// Error is the tagged failure type shared by every pipeline component.
type Error struct {
	Kind       Kind
	Op         string
	ExternalID string
	// Reason is the not-found sub-reason or the validation reason.
	Reason string
	// Field names the offending value for validation and invalid-argument failures.
	Field string
	// Stderr holds captured diagnostics for tool failures.
	Stderr string
	// Required and Available report bytes for resource exhaustion.
	Required  uint64
	Available uint64
	// Attempts is non-zero when a retry budget was exhausted.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 5)
	if op := strings.TrimSpace(e.Op); op != "" {
		if e.ExternalID != "" {
			op = fmt.Sprintf("%s %s", op, e.ExternalID)
		}
		parts = append(parts, op)
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("failed after %d attempts", e.Attempts))
	} else {
		parts = append(parts, string(e.Kind))
	}
	switch e.Kind {
	case KindResourceExhausted:
		parts = append(parts, fmt.Sprintf("need %d bytes, %d available", e.Required, e.Available))
	case KindValidation, KindInvalidArgument:
		if e.Field != "" {
			parts = append(parts, fmt.Sprintf("%s %s", e.Field, e.Reason))
		} else if e.Reason != "" {
			parts = append(parts, e.Reason)
		}
	case KindToolFailure:
		if e.Reason != "" {
			parts = append(parts, e.Reason)
		}
		if stderr := lastLine(e.Stderr); stderr != "" {
			parts = append(parts, stderr)
		}
	default:
		if e.Reason != "" {
			parts = append(parts, e.Reason)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind returns the kind discriminator as a plain string.
func (e *Error) ErrorKind() string {
	if e == nil {
		return ""
	}
	return string(e.Kind)
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindTransient && e.Attempts == 0
}

// NotFound reports a remote resource that is private, deleted, or otherwise unreachable.
func NotFound(op, externalID, reason string, err error) error {
	if reason == "" {
		reason = ReasonUnavailable
	}
	return &Error{Kind: KindNotFound, Op: op, ExternalID: externalID, Reason: reason, Err: err}
}

// AgeRestricted reports content that requires sign-in for age verification.
func AgeRestricted(op, externalID string, err error) error {
	return &Error{Kind: KindAgeRestricted, Op: op, ExternalID: externalID, Err: err}
}

// AccessDenied reports a provider refusal (HTTP 403, bot check). It routes
// callers onto their alternate tool path and is never retried.
func AccessDenied(op, externalID string, err error) error {
	return &Error{Kind: KindAccessDenied, Op: op, ExternalID: externalID, Err: err}
}

// Transient reports a network, timeout, or local I/O failure worth retrying.
func Transient(op, externalID string, err error) error {
	return &Error{Kind: KindTransient, Op: op, ExternalID: externalID, Err: err}
}

// ResourceExhausted reports insufficient disk space.
func ResourceExhausted(op string, required, available uint64) error {
	return &Error{Kind: KindResourceExhausted, Op: op, Required: required, Available: available}
}

// Validation reports a field-specific invariant violation.
func Validation(op, field, reason string) error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Reason: reason}
}

// InvalidArgument reports a caller-supplied value outside the accepted domain.
func InvalidArgument(op, field, reason string) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Field: field, Reason: reason}
}

// ToolFailure reports an external process that exited unsuccessfully.
func ToolFailure(op, tool, stderr string, err error) error {
	return &Error{Kind: KindToolFailure, Op: op, Reason: tool, Stderr: strings.TrimSpace(stderr), Err: err}
}

// Timeout reports an operation that exceeded its configured bound.
func Timeout(op, externalID string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, ExternalID: externalID, Err: err}
}

// Exhausted wraps the final cause of a retried operation with the attempt count.
func Exhausted(op, externalID string, attempts int, cause error) error {
	kind := KindOf(cause)
	if kind == "" {
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, ExternalID: externalID, Attempts: attempts, Err: cause}
}

// KindOf returns the failure kind carried by err. Context cancellation and
// deadline errors map to KindCancelled and KindTimeout. Unknown errors return "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is a transient failure with budget remaining.
func IsRetryable(err error) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Retryable()
	}
	return false
}

// AttemptsOf returns the attempt count recorded on an exhausted retry error.
func AttemptsOf(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Attempts
	}
	return 0
}

// Describe renders a short operator-facing explanation for a failure kind.
func Describe(kind Kind) string {
	switch kind {
	case KindNotFound:
		return "video is unavailable, private, deleted, or region blocked"
	case KindAgeRestricted:
		return "video is age restricted"
	case KindAccessDenied:
		return "provider denied access"
	case KindTransient:
		return "temporary network or I/O failure"
	case KindResourceExhausted:
		return "not enough free disk space"
	case KindValidation:
		return "metadata failed validation"
	case KindInvalidArgument:
		return "invalid input"
	case KindToolFailure:
		return "external tool failed"
	case KindTimeout:
		return "operation timed out"
	case KindCancelled:
		return "operation cancelled"
	default:
		return "unexpected failure"
	}
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}
