package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorsMatchSentinels(t *testing.T) {
	cfg := Configuration("property %q is required", "dictionaries")
	if !IsConfiguration(cfg) {
		t.Fatalf("expected configuration error to match ErrConfiguration")
	}
	if IsFatal(cfg) {
		t.Fatalf("configuration error must not be fatal")
	}
	if cfg.Error() != `[CONFIGURATION] property "dictionaries" is required` {
		t.Fatalf("unexpected message: %s", cfg.Error())
	}

	cause := errors.New("connection reset")
	ds := Datastore("read failed", cause)
	if !IsFatal(ds) {
		t.Fatalf("expected datastore error to be fatal")
	}
	if !errors.Is(ds, cause) {
		t.Fatalf("expected datastore error to unwrap to its cause")
	}

	wrapped := fmt.Errorf("row 7: %w", Fatal(cause))
	if !IsFatal(wrapped) {
		t.Fatalf("expected wrapped fatal error to be fatal")
	}
	if Fatal(nil) != nil {
		t.Fatalf("expected Fatal(nil) to be nil")
	}
}

func TestCancellationError(t *testing.T) {
	err := &CancellationError{RunID: "abc"}
	if !IsCancellation(err) {
		t.Fatalf("expected cancellation marker to match ErrCancelled")
	}
	if IsFatal(err) || IsConfiguration(err) {
		t.Fatalf("cancellation must be distinct from failures")
	}
	if err.Error() != "analysis job cancelled (run abc)" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
