package models

import "net/http"

// Error kinds reported in ErrorResponse.Error
const (
	ErrValidation = "validation_error"
	ErrNotFound   = "not_found"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Code    int    `json:"code"`
}

// BadRequest reports a query or path parameter that failed validation.
// cause, when non-nil, becomes Details.
func BadRequest(message string, cause error) ErrorResponse {
	resp := ErrorResponse{
		Error:   ErrValidation,
		Message: message,
		Code:    http.StatusBadRequest,
	}
	if cause != nil {
		resp.Details = cause.Error()
	}
	return resp
}

// NotFound reports a switch or resource that does not exist
func NotFound(message string) ErrorResponse {
	return ErrorResponse{
		Error:   ErrNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}
