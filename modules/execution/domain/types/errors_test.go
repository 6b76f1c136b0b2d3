package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransient(errors.New("x"))); got != ErrorTransient {
		t.Fatalf("kind=%q", got)
	}
	if got := ClassifyError(NewValidation(errors.New("x"))); got != ErrorValidation {
		t.Fatalf("kind=%q", got)
	}
	if got := ClassifyError(errors.New("plain")); got != ErrorFatal {
		t.Fatalf("kind=%q", got)
	}
	wrapped := fmt.Errorf("outer: %w", NewTransient(errors.New("inner")))
	if got := ClassifyError(wrapped); got != ErrorTransient {
		t.Fatalf("kind=%q", got)
	}
}

func TestTaskErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(NewFatal(inner), inner) {
		t.Fatal("expected unwrap to inner")
	}
}

func TestExecutionStatus(t *testing.T) {
	if !ExecutionSuccess.Terminal() || ExecutionPending.Terminal() {
		t.Fatal("terminal classification wrong")
	}
	if !ExecutionTimedOut.Valid() || ExecutionStatus("nope").Valid() {
		t.Fatal("validity wrong")
	}
}
