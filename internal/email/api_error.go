package email

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody is how much of a failed response is kept as error message.
const maxErrorBody = 4096

// APIError is returned by senders when an email provider refuses a message.
type APIError struct {
	Provider   string
	StatusCode int
	// Code is the provider specific error code, 0 if the provider has none.
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d, code %d: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether the same message could be accepted later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ReadAPIError creates an APIError from a response, using the start of
// its body as message.
func ReadAPIError(provider string, resp *http.Response) *APIError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(b)),
	}
}
