package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of error categories the core reasons about.
// External errors are folded into this set by Classify at the boundary;
// internal logic only ever switches over Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindUnauthenticated
	KindPermissionDenied
	KindNotFound
	KindResourceExhausted
	KindAborted
	KindOffline
	KindCircuitBreakerOpen
	KindRateLimited
	KindDuplicateSubmission
	KindSuspiciousActivity
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindAborted:
		return "aborted"
	case KindOffline:
		return "offline"
	case KindCircuitBreakerOpen:
		return "circuit_breaker_open"
	case KindRateLimited:
		return "rate_limited"
	case KindDuplicateSubmission:
		return "duplicate_rating"
	case KindSuspiciousActivity:
		return "suspicious_activity"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind may succeed on a later
// attempt. Permission, validation and policy errors never do.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindResourceExhausted, KindAborted, KindOffline:
		return true
	default:
		return false
	}
}

// userMessages maps error codes to the fixed messages surfaced to callers,
// so raw internal errors never reach the UI.
var userMessages = map[string]string{
	"network":              "A network problem interrupted the request. Please try again.",
	"unauthenticated":      "You need to sign in to do that.",
	"permission_denied":    "You don't have permission to do that.",
	"not_found":            "The requested item could not be found.",
	"resource_exhausted":   "The service is busy right now. Please try again shortly.",
	"aborted":              "The operation was interrupted. Please try again.",
	"offline":              "You appear to be offline. Your change has been saved and will sync automatically.",
	"circuit_breaker_open": "This feature is temporarily unavailable. Please try again in a minute.",
	"rate_limited":         "You're doing that too often. Please wait before trying again.",
	"duplicate_rating":     "You have already rated this business. Your existing rating was updated instead.",
	"suspicious_activity":  "This action is under review. Please contact support if you believe this is an error.",
	"unknown":              "Something went wrong. Please try again.",
}

// UserMessage returns the stable human-readable message for an error code.
func UserMessage(code string) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return userMessages["unknown"]
}

// Error is a classified error carrying the operation it arose from and
// optional structured context. It wraps the original cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the machine-readable error code.
func (e *Error) Code() string { return e.Kind.String() }

// NewError builds a classified error with the fixed user message for its kind.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: UserMessage(kind.String()),
		Err:     cause,
	}
}

// WithContext attaches a context value and returns the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the Kind from any error produced by the core.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Classify folds an external error (backend client, storage, transport) into
// the closed Kind set. This is the single entry point for error taxonomy;
// matching is by error code substring since the backend SDK reports stringly
// coded failures.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	// Already classified: keep the original kind, update the op if empty.
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Op == "" {
			ce.Op = op
		}
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindNetwork, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindAborted, op, err)
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "network-request-failed"),
		strings.Contains(s, "unavailable"),
		strings.Contains(s, "deadline-exceeded"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "timeout"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "eof"):
		return NewError(KindNetwork, op, err)
	case strings.Contains(s, "unauthenticated"),
		strings.Contains(s, "invalid credential"),
		strings.Contains(s, "token expired"):
		return NewError(KindUnauthenticated, op, err)
	case strings.Contains(s, "permission-denied"),
		strings.Contains(s, "permission denied"),
		strings.Contains(s, "forbidden"):
		return NewError(KindPermissionDenied, op, err)
	case strings.Contains(s, "not-found"),
		strings.Contains(s, "not found"):
		return NewError(KindNotFound, op, err)
	case strings.Contains(s, "resource-exhausted"),
		strings.Contains(s, "too many requests"),
		strings.Contains(s, "quota"):
		return NewError(KindResourceExhausted, op, err)
	case strings.Contains(s, "aborted"):
		return NewError(KindAborted, op, err)
	case strings.Contains(s, "offline"):
		return NewError(KindOffline, op, err)
	default:
		return NewError(KindUnknown, op, err)
	}
}
