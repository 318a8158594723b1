// errors.go
// ---------
// Error taxonomy for the dispatch pipeline. Configuration problems surface as
// ConfigError and are never retried; HTTP-level failures surface as APIError;
// a 401 that survives the single refresh-and-retry attempt surfaces as
// InvalidTokenError so callers can distinguish it from generic HTTP errors.
package twitchbridge

import (
	"encoding/json"
	"fmt"
)

// ConfigError reports a construction- or usage-time configuration problem,
// such as a missing auth provider or a provider lacking a required
// capability.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "twitchbridge: " + e.Reason
}

// APIError reports a non-2xx HTTP response. Body holds the raw response
// payload; Message carries the parsed Twitch error message when the body was
// the standard JSON error envelope.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
}

// InvalidTokenError reports a 401 that could not be remedied by refreshing
// the token, or a failed refresh attempt itself.
type InvalidTokenError struct {
	Err error
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("access token invalid or expired: %v", e.Err)
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// newAPIError builds an APIError from a response, parsing the standard
// {"error", "status", "message"} envelope when present.
func newAPIError(req APIRequest, resp *APIResponse) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     req.method(),
		URL:        req.URL,
		Body:       resp.Body,
	}
	var envelope struct {
		Error   string `json:"error"`
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err == nil {
		apiErr.Message = envelope.Message
		if apiErr.Message == "" {
			apiErr.Message = envelope.Error
		}
	}
	return apiErr
}
