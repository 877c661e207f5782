// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response envelope shared by every endpoint. Both
// success and failure carry a "success" flag so clients can branch on one
// field:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "success": false,
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "error": "validation failed",
//	  "fields": [{"field": "amount", "message": "Amount is required"}]
//	}
//
//	HTTP/1.1 200 OK
//	{ "success": true, "data": { "id": "...", "status": "PENDING" } }
//
// Store and queue errors are never echoed to the client; they collapse to an
// opaque message and are logged server-side.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voucher-gift/internal/http/middleware"
	"github.com/tbourn/go-voucher-gift/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Always false
	Success bool `json:"success" example:"false"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"validation_failed"`
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"validation failed"`
	// Field-level detail, only for validation failures
	Fields []services.FieldError `json:"fields,omitempty"`
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Error: msg})
}

// failFields aborts with a 400 carrying field-level validation detail.
func failFields(c *gin.Context, verr *services.ValidationError) {
	failWith(c, http.StatusBadRequest, ErrorResponse{
		Code:   ErrCodeValidation,
		Error:  verr.Error(),
		Fields: verr.Fields,
	})
}

func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.Success = false
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Error).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope around data.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Success: true, Data: data})
}
