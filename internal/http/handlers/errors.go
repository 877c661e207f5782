// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Every error response carries an HTTP status and one of
// these codes (see fail() in response.go).
//
// Example response:
//
//	{
//	  "success": false,
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "error": "voucher not found"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation       = "validation_failed"
	ErrCodeSubmitFailed     = "submit_failed"
	ErrCodeProcessingFailed = "processing_failed"
	ErrCodeListFailed       = "list_failed"
)

// Messages surfaced to clients for opaque server-side failures.
const (
	msgSubmitFailed  = "failed to process voucher gift"
	msgProcessFailed = "Failed to process voucher"
)
