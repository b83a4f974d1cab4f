package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so errors.Is works on
// copies produced by WithError.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Session not found or expired",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrMissingImages = &AppError{
		Code:       "MISSING_IMAGES",
		Message:    "Please upload both images.",
		StatusCode: 422,
	}

	ErrMissingImage = &AppError{
		Code:       "MISSING_IMAGE",
		Message:    "Please upload an image.",
		StatusCode: 422,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Please enter a valid numeric threshold.",
		StatusCode: 422,
	}

	ErrInvalidTab = &AppError{
		Code:       "INVALID_TAB",
		Message:    "Unknown tab, expected match, liveness or analyze",
		StatusCode: 422,
	}

	ErrInvalidSlot = &AppError{
		Code:       "INVALID_SLOT",
		Message:    "Unknown image slot, expected one or two",
		StatusCode: 422,
	}

	ErrInvalidAPIURL = &AppError{
		Code:       "INVALID_API_URL",
		Message:    "API URL must be an absolute http or https URL",
		StatusCode: 422,
	}

	ErrMatchFailed = &AppError{
		Code:       "MATCH_FAILED",
		Message:    "Face match failed. Please upload valid images.",
		StatusCode: 422,
	}

	ErrInferenceUnavailable = &AppError{
		Code:       "INFERENCE_UNAVAILABLE",
		Message:    "Something went wrong. Please try again.",
		StatusCode: 502,
	}

	ErrInvalidInferenceResponse = &AppError{
		Code:       "INVALID_INFERENCE_RESPONSE",
		Message:    "The face service returned an unreadable response. Check the API URL or tunnel.",
		StatusCode: 502,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}
)
