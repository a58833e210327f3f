package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/http/response"
	"github.com/likeshelf/likeshelf-server/internal/service"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		// A failed sync carries its run summary as details.
		var syncErr *service.SyncError
		if errors.As(err, &syncErr) {
			apiErr := fromError(syncErr.Err)
			apiErr.Details = syncErr.Details()
			return apiErr
		}

		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return fromError(domainErr)
		}

		var storeErr *store.Error
		if errors.As(err, &storeErr) {
			return &APIError{
				status:  storeErr.HTTPCode(),
				Code:    string(response.StatusCode(storeErr.HTTPCode())),
				Message: storeErr.Message,
			}
		}
	}

	// Request validation failures from huma are reported as 400 VALIDATION
	// with the individual problems as details.
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}

	apiErr := &APIError{
		status:  status,
		Code:    string(response.StatusCode(status)),
		Message: message,
	}
	if status == http.StatusBadRequest && len(errs) > 0 {
		problems := make([]string, 0, len(errs))
		for _, err := range errs {
			problems = append(problems, err.Error())
		}
		apiErr.Details = problems
	}
	return apiErr
}

// fromError converts err to an APIError. Context errors and anything
// without a code become INTERNAL.
func fromError(err error) *APIError {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return &APIError{
			status:  domainErr.HTTPStatus(),
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}
	}
	return &APIError{
		status:  http.StatusInternalServerError,
		Code:    string(domainerrors.CodeInternal),
		Message: "internal server error",
	}
}
