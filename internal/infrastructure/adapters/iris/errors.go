package iris

import "fmt"

// ErrorResponse represents an attestation API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("attestation API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// ErrNotFound indicates the authority has no record of the message hash yet.
// Shortly after a burn this is equivalent to pending.
var ErrNotFound = fmt.Errorf("message hash not known to attestation authority")
