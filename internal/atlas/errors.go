package atlas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoCredentials is returned by calls that need an authenticated client.
var ErrNoCredentials = errors.New("atlas api credentials are not configured")

// APIError is a non-2xx response from the Atlas API.
type APIError struct {
	StatusCode int
	Status     string // e.g. "404 Not Found"
	ErrorCode  string
	Reason     string
	Detail     string
}

func (e *APIError) Error() string {
	msg := "unknown error"
	if e.Reason != "" {
		msg = e.Reason
	}
	if e.Detail != "" {
		msg = msg + "; " + e.Detail
	}
	return fmt.Sprintf("[%s] error calling Atlas API: %s", e.Status, strings.TrimSpace(msg))
}

// IsNotFound reports whether err is a 404 from the Atlas API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type apiErrorBody struct {
	Error     int    `json:"error"`
	ErrorCode string `json:"errorCode"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail"`
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	if apiErr.Status == "" {
		apiErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && (body.Reason != "" || body.Detail != "" || body.ErrorCode != "") {
		apiErr.ErrorCode = body.ErrorCode
		apiErr.Reason = body.Reason
		apiErr.Detail = body.Detail
		return apiErr
	}

	apiErr.Reason = strings.TrimSpace(string(raw))
	return apiErr
}
