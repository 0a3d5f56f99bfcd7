package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := NewError("relay", TransportFailure, "wss://a", errors.New("refused"))

	if !Is(err, TransportFailure) {
		t.Fatalf("expected TransportFailure")
	}
	if Is(err, CorrelationTimeout) {
		t.Fatalf("TransportFailure should not match CorrelationTimeout")
	}

	wrapped := fmt.Errorf("bootstrap seed 1: %w", err)
	if !Is(wrapped, TransportFailure) {
		t.Fatalf("Is should see through wrapping")
	}

	if Is(errors.New("plain"), TransportFailure) {
		t.Fatalf("plain errors have no type")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf("record", InvalidRecord, "abc", "kind %d", 1)
	want := "record, abc, Invalid Record: kind 1"
	if err.Error() != want {
		t.Fatalf("message should be %q, not %q", want, err.Error())
	}
	if errors.Unwrap(err) == nil {
		t.Fatalf("cause should be unwrappable")
	}
}
