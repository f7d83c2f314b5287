package apperrors

import (
	"fmt"
	"net/http"
)

// FromStatus maps an HTTP status returned by a provider onto the error taxonomy.
// Rate limits, timeouts and 5xx are retryable ProviderUnavailable errors. Any other
// 4xx rejects the request itself and becomes a MalformedResponse.
func FromStatus(provider string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return NewProviderUnavailable(provider, FailureRateLimited, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewProviderUnavailable(provider, FailureTimeout, err)
	case status >= 500:
		return NewProviderUnavailable(provider, FailureUnavailable, err)
	}
	return NewMalformedResponse(provider, fmt.Sprintf("request rejected with status %d", status), err)
}
