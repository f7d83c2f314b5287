package apperrors

import (
	"errors"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status  int
		failure ProviderFailure
	}{
		{429, FailureRateLimited},
		{408, FailureTimeout},
		{504, FailureTimeout},
		{500, FailureUnavailable},
		{503, FailureUnavailable},
		{400, ""},
		{401, ""},
		{404, ""},
	}
	for _, tt := range tests {
		err := FromStatus("openai", tt.status, nil)
		var pu *ProviderUnavailableError
		if tt.failure == "" {
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("status %d: expected malformed response, got %v", tt.status, err)
			}
			continue
		}
		if !errors.As(err, &pu) || pu.Failure != tt.failure {
			t.Errorf("status %d: got %v, want failure %s", tt.status, err, tt.failure)
		}
	}
}
