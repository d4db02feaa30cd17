package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestAragError_Error(t *testing.T) {
	err := &AragError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "not found: corpus.db",
	}

	expected := "NOT_FOUND: not found: corpus.db"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("top_k must be at least 1")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "top_k must be at least 1" {
		t.Errorf("Message = %q, want %q", err.Message, "top_k must be at least 1")
	}
}

func TestNewDestinationExists(t *testing.T) {
	err := NewDestinationExists("/tmp/docs.arag")

	if err.Code != ErrDestinationExists {
		t.Errorf("Code = %q, want %q", err.Code, ErrDestinationExists)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["path"] != "/tmp/docs.arag" {
		t.Errorf("Details[path] = %v, want %q", err.Details["path"], "/tmp/docs.arag")
	}
}

func TestNewShortRead(t *testing.T) {
	err := NewShortRead(4096, 100, 12)

	if err.Code != ErrShortRead {
		t.Errorf("Code = %q, want %q", err.Code, ErrShortRead)
	}
	if err.Details["offset"] != int64(4096) {
		t.Errorf("Details[offset] = %v, want 4096", err.Details["offset"])
	}
	if err.Details["want"] != 100 || err.Details["got"] != 12 {
		t.Errorf("Details = %v, want want=100 got=12", err.Details)
	}
}

func TestNewUnsupportedCompression(t *testing.T) {
	err := NewUnsupportedCompression("corpus.db", 8)

	if err.Code != ErrUnsupportedCompression {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnsupportedCompression)
	}
	if err.Details["member"] != "corpus.db" {
		t.Errorf("Details[member] = %v, want corpus.db", err.Details["member"])
	}
}

func TestNewIndexingAborted(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewIndexingAborted(42, 32, cause)

	if err.Code != ErrIndexingAborted {
		t.Errorf("Code = %q, want %q", err.Code, ErrIndexingAborted)
	}
	if err.Details["chunk_id"] != int64(42) {
		t.Errorf("Details[chunk_id] = %v, want 42", err.Details["chunk_id"])
	}
	if err.Details["committed"] != 32 {
		t.Errorf("Details[committed] = %v, want 32", err.Details["committed"])
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database is locked"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want generic message", err.Message)
		}
		if err.Details["internal_error"] != "database is locked" {
			t.Errorf("Details[internal_error] = %v, want %q", err.Details["internal_error"], "database is locked")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Details == nil {
			t.Error("Details should not be nil")
		}
		if err.Unwrap() != nil {
			t.Errorf("Unwrap() = %v, want nil", err.Unwrap())
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		if !Is(NewEmptyIndex(), ErrEmptyIndex) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		if Is(NewEmptyIndex(), ErrNotFound) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if Is(io.EOF, ErrShortRead) {
			t.Error("Is() = true, want false for non-AragError")
		}
	})

	t.Run("wrapped AragError", func(t *testing.T) {
		wrapped := fmt.Errorf("open corpus: %w", NewWriteNotSupported("archive is read-only"))
		if !Is(wrapped, ErrWriteNotSupported) {
			t.Error("Is() = false, want true for wrapped AragError")
		}
		if Is(wrapped, ErrShortRead) {
			t.Error("Is() = true, want false for wrong code on wrapped AragError")
		}
	})
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("query: %w", NewMissingPrerequisite("run build first"))

	aErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() ok = false, want true")
	}
	if aErr.Code != ErrMissingPrerequisite {
		t.Errorf("Code = %q, want %q", aErr.Code, ErrMissingPrerequisite)
	}

	if _, ok := As(io.EOF); ok {
		t.Error("As() ok = true for plain error")
	}
}
