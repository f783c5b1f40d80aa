package traderr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestConstructorsCarryCodeAndStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       Code
		httpStatus int
	}{
		{"not found", NotFound("dealer", 42), CodeNotFound, http.StatusNotFound},
		{"invalid input", InvalidInput("quantity", "must be positive"), CodeInvalidInput, http.StatusBadRequest},
		{"invalid configuration", InvalidConfiguration("weights sum to 1.05"), CodeInvalidConfiguration, http.StatusBadRequest},
		{"insufficient data", InsufficientData(12, 30), CodeInsufficientData, http.StatusUnprocessableEntity},
		{"model not trained", ModelNotTrained(nil), CodeModelNotTrained, http.StatusServiceUnavailable},
		{"training timeout", ModelTrainingTimeout(30 * time.Second), CodeModelTrainingTimeout, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf = %q, want %q", got, tt.code)
			}
			if got := StatusOf(tt.err); got != tt.httpStatus {
				t.Errorf("StatusOf = %d, want %d", got, tt.httpStatus)
			}
			if tt.err.Error() == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("resolving scenario: %w", NotFound("product", 7))
	if !IsCode(wrapped, CodeNotFound) {
		t.Errorf("wrapped error lost its code: %v", CodeOf(wrapped))
	}
	if StatusOf(wrapped) != http.StatusNotFound {
		t.Errorf("wrapped error lost its status: %d", StatusOf(wrapped))
	}
}

func TestUnknownErrorsFallBack(t *testing.T) {
	err := errors.New("disk on fire")
	if CodeOf(err) != "" {
		t.Errorf("CodeOf(plain error) = %q, want empty", CodeOf(err))
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("StatusOf(plain error) = %d, want 500", StatusOf(err))
	}
}

func TestModelNotTrainedPreservesCause(t *testing.T) {
	cause := InsufficientData(10, 30)
	err := ModelNotTrained(cause)

	if !IsCode(err, CodeModelNotTrained) {
		t.Fatalf("code = %q, want %q", CodeOf(err), CodeModelNotTrained)
	}
}
