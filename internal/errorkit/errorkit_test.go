package errorkit

import (
	"errors"
	"testing"
)

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindConflict, KindTimeout, KindUnavailable, KindProtocolError}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("expected %s to be retryable", k)
		}
	}
	nonRetryable := []Kind{
		KindValidation, KindAuthentication, KindNotFound,
		KindStateError, KindDeadlockError, KindBudgetExhausted, KindCancelled,
	}
	for _, k := range nonRetryable {
		if k.Retryable() {
			t.Errorf("expected %s to be non-retryable", k)
		}
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap("store.Get", KindUnavailable, cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected Wrap to preserve the underlying cause")
	}
	if KindOf(err) != KindUnavailable {
		t.Fatalf("expected kind unavailable, got %s", KindOf(err))
	}
	if !Retryable(err) {
		t.Fatalf("expected wrapped unavailable error to be retryable")
	}
}

func TestKindOfDefaultsToStateError(t *testing.T) {
	plain := errors.New("boom")
	if KindOf(plain) != KindStateError {
		t.Fatalf("expected unclassified errors to default to state_error, got %s", KindOf(plain))
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(Wrap("get", KindNotFound, errors.New("x"))) {
		t.Fatalf("expected IsNotFound to match")
	}
	if !IsConflict(ErrConflict) {
		t.Fatalf("expected IsConflict to match sentinel")
	}
	if !IsDeadlock(ErrDeadlock) {
		t.Fatalf("expected IsDeadlock to match sentinel")
	}
	if IsNotFound(ErrConflict) {
		t.Fatalf("expected IsNotFound to reject a conflict error")
	}
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	a := Wrap("opA", KindTimeout, errors.New("a"))
	b := Wrap("opB", KindTimeout, errors.New("b"))
	if !errors.Is(a, b) {
		t.Fatalf("expected two *Error values of the same kind to match via errors.Is")
	}
	c := Wrap("opC", KindConflict, errors.New("c"))
	if errors.Is(a, c) {
		t.Fatalf("expected different kinds not to match")
	}
}

func TestWithContext(t *testing.T) {
	err := Wrap("scheduler.next", KindStateError, errors.New("bad transition"))
	err = WithContext(err, "scheduler", "corr-123")

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error to remain extractable")
	}
	if e.Component != "scheduler" || e.CorrelationID != "corr-123" {
		t.Fatalf("expected context fields to be set, got %+v", e)
	}
}

func TestNilWrapReturnsNil(t *testing.T) {
	if Wrap("op", KindTimeout, nil) != nil {
		t.Fatalf("expected Wrap(nil) to return nil")
	}
	if WrapAs("op", KindTimeout, nil) != nil {
		t.Fatalf("expected WrapAs(nil) to return nil")
	}
}
