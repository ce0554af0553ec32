package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name          string
		field         string
		message       string
		expectedError string
	}{
		{
			name:          "with field",
			field:         "hash",
			message:       "not a valid CID",
			expectedError: "validation error: hash: not a valid CID",
		},
		{
			name:          "without field",
			message:       "invalid input",
			expectedError: "validation error: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, nil)
			if err.Error() != tt.expectedError {
				t.Errorf("Expected error %q, got %q", tt.expectedError, err.Error())
			}
			if err.Code() != CodeValidation {
				t.Errorf("Expected code %q, got %q", CodeValidation, err.Code())
			}
			if !IsValidation(err) {
				t.Error("Expected IsValidation to be true")
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("pinning record", "content-1")
	if err.Error() != "pinning record with ID 'content-1' not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
	wrapped := fmt.Errorf("load: %w", err)
	if !IsNotFound(wrapped) {
		t.Error("Expected wrapped error to be detected as not found")
	}
	if GetErrorCode(wrapped) != CodeNotFound {
		t.Errorf("Expected code %q, got %q", CodeNotFound, GetErrorCode(wrapped))
	}
}

func TestConfirmationError(t *testing.T) {
	err := NewConfirmationError("emergency unpin")
	if !IsConfirmation(err) {
		t.Fatal("Expected IsConfirmation to be true")
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", StatusCode(err))
	}
	if !strings.Contains(err.Error(), "emergency unpin") {
		t.Errorf("message should name the operation: %q", err.Error())
	}
}

func TestWrapPreservesCode(t *testing.T) {
	base := NewServiceError("pinata", "upstream down", http.StatusBadGateway, nil)
	wrapped := Wrap(base, "pin failed")
	if GetErrorCode(wrapped) != CodeServiceUnavailable {
		t.Errorf("Expected code %q, got %q", CodeServiceUnavailable, GetErrorCode(wrapped))
	}
	if !ShouldRetry(wrapped) {
		t.Error("service unavailable should be retryable")
	}

	plain := Wrap(errors.New("boom"), "context")
	if GetErrorCode(plain) != CodeInternal {
		t.Errorf("Expected internal code, got %q", GetErrorCode(plain))
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewValidationError("x", "bad", nil), http.StatusBadRequest},
		{NewNotFoundError("record", "1"), http.StatusNotFound},
		{NewCodedError(CodeConflict, "taken"), http.StatusConflict},
		{ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
