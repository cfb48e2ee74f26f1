package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect Kind
	}{
		{errors.New("network-request-failed"), KindNetwork},
		{errors.New("rpc error: code = Unavailable"), KindNetwork},
		{errors.New("dial tcp: connection refused"), KindNetwork},
		{errors.New("read tcp: connection reset by peer"), KindNetwork},
		{errors.New("deadline-exceeded"), KindNetwork},
		{errors.New("i/o timeout"), KindNetwork},
		{errors.New("unauthenticated: token invalid"), KindUnauthenticated},
		{errors.New("permission-denied"), KindPermissionDenied},
		{errors.New("403 Forbidden"), KindPermissionDenied},
		{errors.New("document not-found"), KindNotFound},
		{errors.New("resource-exhausted"), KindResourceExhausted},
		{errors.New("429 Too Many Requests"), KindResourceExhausted},
		{errors.New("quota exceeded"), KindResourceExhausted},
		{errors.New("transaction aborted"), KindAborted},
		{errors.New("client is offline"), KindOffline},
		{errors.New("something else entirely"), KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify("op", tt.err).Kind; got != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := Classify("op", context.DeadlineExceeded).Kind; got != KindNetwork {
		t.Errorf("deadline exceeded classified as %v, want %v", got, KindNetwork)
	}
	if got := Classify("op", context.Canceled).Kind; got != KindAborted {
		t.Errorf("canceled classified as %v, want %v", got, KindAborted)
	}
}

func TestClassifyPreservesClassified(t *testing.T) {
	orig := NewError(KindRateLimited, "guard.check", nil)
	wrapped := fmt.Errorf("submit failed: %w", orig)

	got := Classify("ratings.submit", wrapped)
	if got.Kind != KindRateLimited {
		t.Errorf("kind = %v, want %v", got.Kind, KindRateLimited)
	}
	if got.Op != "guard.check" {
		t.Errorf("op = %q, want original op preserved", got.Op)
	}
}

func TestRetryable(t *testing.T) {
	retryable := []Kind{KindNetwork, KindResourceExhausted, KindAborted, KindOffline}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%v should be retryable", k)
		}
	}

	terminal := []Kind{
		KindUnauthenticated, KindPermissionDenied, KindNotFound,
		KindCircuitBreakerOpen, KindRateLimited, KindDuplicateSubmission,
		KindSuspiciousActivity, KindUnknown,
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%v should not be retryable", k)
		}
	}
}

func TestUserMessageNeverEmpty(t *testing.T) {
	for k := KindUnknown; k <= KindSuspiciousActivity; k++ {
		if UserMessage(k.String()) == "" {
			t.Errorf("no user message for kind %v", k)
		}
	}
	if UserMessage("no_such_code") != userMessages["unknown"] {
		t.Error("unknown code should fall back to the generic message")
	}
}
