package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the standardized JSON response envelope.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError contains error details in the response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Success sends a successful JSON response with data.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// Result sends data whose success flag is decided by the caller. Used when
// the request was processed but the outcome itself may be negative.
func Result(c *gin.Context, statusCode int, ok bool, data any) {
	c.JSON(statusCode, APIResponse{
		Success: ok,
		Data:    data,
	})
}

// Error sends an error JSON response.
func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    statusCode,
			Message: message,
		},
	})
}

// StatusFor returns the HTTP status a domain error maps to.
func StatusFor(err error) int {
	var notFound *NotFoundError
	var validation *ValidationError
	var unauthorized *UnauthorizedError
	var conflict *ConflictError
	var unprocessable *UnprocessableError
	var tooMany *TooManyRequestsError
	var provider *ProviderError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &unprocessable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &tooMany):
		return http.StatusTooManyRequests
	case errors.As(err, &provider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError inspects a domain error and sends the appropriate HTTP response.
// Uses errors.As to traverse the full error chain, supporting wrapped errors.
func HandleError(c *gin.Context, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		Error(c, status, "internal server error")
	case http.StatusBadGateway:
		Error(c, status, "notification delivery failed")
	default:
		Error(c, status, err.Error())
	}
}
