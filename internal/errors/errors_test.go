package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := NewInvalidRequest("budget must be positive")
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("Error() = %q, missing code", err.Error())
	}
	if !strings.Contains(err.Error(), "budget must be positive") {
		t.Errorf("Error() = %q, missing message", err.Error())
	}
}

func TestNotFoundDetails(t *testing.T) {
	err := NewNotFound("decision/42")
	if err.Details["identifier"] != "decision/42" {
		t.Errorf("Details = %v", err.Details)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
}

func TestStoreUnavailableWrapsCause(t *testing.T) {
	cause := stderrors.New("database is locked")
	err := NewStoreUnavailable(cause)
	if err.Code != ErrStoreUnavailable || err.Status != 503 {
		t.Errorf("code/status = %s/%d", err.Code, err.Status)
	}
	if err.Details["cause"] != "database is locked" {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestIsCode(t *testing.T) {
	err := NewAlreadyExists("pattern", "Repository")
	if !IsCode(err, ErrAlreadyExists) {
		t.Error("IsCode should match ALREADY_EXISTS")
	}
	if IsCode(err, ErrNotFound) {
		t.Error("IsCode should not match NOT_FOUND")
	}
	if IsCode(stderrors.New("plain"), ErrInternal) {
		t.Error("IsCode should not match plain errors")
	}
}
