package httpx

import (
	"fmt"
	"net/http"
)

// Error codes returned by the API. Credential and token failures are
// deliberately generic so callers cannot tell which sub-check failed.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeEmailInUse         = "email_in_use"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeSessionError       = "session_error"
	ErrorCodeLimitExceeded      = "limit_exceeded"
	ErrorCodeMFAFailed          = "mfa_failed"
	ErrorCodeInvalidState       = "invalid_state"
	ErrorCodeServerError        = "server_error"
)

// APIError is a JSON error body with an attached HTTP status. It implements
// the error interface so handlers can both return and write it.
type APIError struct {
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	WriteJSON(w, e.StatusCode, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	// ErrInvalidRequest is returned for malformed or incomplete request bodies.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidCredentials covers both unknown accounts and wrong passwords.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	// ErrEmailInUse is returned when signing up with a taken email address.
	ErrEmailInUse = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeEmailInUse,
		Description: "an account with this email already exists",
	}

	// ErrInvalidToken covers signature failures, expiry, fingerprint
	// mismatch and dead sessions without distinguishing them.
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "authentication required",
	}

	// ErrSessionError is returned when logout finds nothing to delete.
	ErrSessionError = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeSessionError,
		Description: "no matching session",
	}

	// ErrLimitExceeded is returned when the TOTP factor limit is reached.
	ErrLimitExceeded = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeLimitExceeded,
		Description: "factor limit reached",
	}

	// ErrMFAFailed covers TOTP and backup-code verification failures.
	ErrMFAFailed = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMFAFailed,
		Description: "verification code rejected",
	}

	// ErrInvalidState is returned for operations on expired or absent
	// pending records, e.g. completing an enrollment that timed out.
	ErrInvalidState = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidState,
		Description: "no pending operation for this request",
	}

	// ErrServerError is the generic durable-store failure response.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)
