package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeStateConflict, http.StatusUnprocessableEntity},
		{CodeRetryExhausted, http.StatusUnprocessableEntity},
		{CodeDependency, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Fatalf("%s: expected status %d got %d", tc.code, tc.status, got)
		}
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestDependencyIsRetryable(t *testing.T) {
	if !IsRetryable(CodeDependency) {
		t.Fatal("dependency errors should be retryable")
	}
	if IsRetryable(CodeRetryExhausted) {
		t.Fatal("retry-exhausted must never be retryable")
	}
}

func TestWrapPreservesChain(t *testing.T) {
	root := stdErrors.New("socket closed")
	wrapped := Wrap(CodeDependency, root, "payout rail call failed")

	if !stdErrors.Is(wrapped, root) {
		t.Fatal("expected wrapped error to unwrap to root cause")
	}
	typed := As(fmt.Errorf("outer: %w", wrapped))
	if typed == nil {
		t.Fatal("expected typed error through fmt wrapping")
	}
	if typed.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("caller: %w", New(CodeNotFound, "payout not found"))
	if !HasCode(err, CodeNotFound) {
		t.Fatal("expected HasCode to match through the chain")
	}
	if HasCode(err, CodeConflict) {
		t.Fatal("unexpected match for different code")
	}
	if HasCode(nil, CodeNotFound) {
		t.Fatal("nil error should never match")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeValidation, stdErrors.New("bad month"), "invalid period")
	dump := Dump(fmt.Errorf("settlement generate: %w", err))
	if dump.Code != CodeValidation {
		t.Fatalf("unexpected dump code %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected full chain, got %d entries", len(dump.Chain))
	}
}
