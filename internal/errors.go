package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound          ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized      ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden         ErrorType = "FORBIDDEN"
	ErrorTypeConflict          ErrorType = "CONFLICT"
	ErrorTypeMethodNotAllowed  ErrorType = "METHOD_NOT_ALLOWED"
	ErrorTypeExpectationFailed ErrorType = "EXPECTATION_FAILED"
	ErrorTypeRateLimited       ErrorType = "RATE_LIMITED"
	ErrorTypeInternal          ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidBody      ErrorCode = "INVALID_BODY"
	ErrCodeRateLimited      ErrorCode = "TOO_MANY_REQUESTS"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeMissingToken       ErrorCode = "MISSING_TOKEN"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked       ErrorCode = "TOKEN_REVOKED"
	ErrCodeTokenMismatch      ErrorCode = "TOKEN_MISMATCH"
	ErrCodeRoleNotPermitted   ErrorCode = "ROLE_NOT_PERMITTED"
	ErrCodeAdminNotConfigured ErrorCode = "ADMIN_NOT_CONFIGURED"
	ErrCodeTokenUnknown       ErrorCode = "TOKEN_UNKNOWN"
	ErrCodeLedgerUnavailable  ErrorCode = "LEDGER_UNAVAILABLE"
	ErrCodeRenewNotAllowed    ErrorCode = "RENEW_NOT_ALLOWED"

	ErrCodeNodeNotFound     ErrorCode = "NODE_NOT_FOUND"
	ErrCodeNodeNameTaken    ErrorCode = "NODE_NAME_TAKEN"
	ErrCodeNodeHasChildren  ErrorCode = "NODE_HAS_CHILDREN"
	ErrCodeNodeNotOwned     ErrorCode = "NODE_NOT_OWNED"
	ErrCodeNodeOutOfScope   ErrorCode = "NODE_OUT_OF_SCOPE"
	ErrCodeParentRequired   ErrorCode = "PARENT_REQUIRED"
	ErrCodeParentNotFound   ErrorCode = "PARENT_NOT_FOUND"
	ErrCodeRootHasNoParent  ErrorCode = "ROOT_HAS_NO_PARENT"
	ErrCodeNodeNotArchived  ErrorCode = "NODE_NOT_ARCHIVED"
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeEmailTaken       ErrorCode = "EMAIL_TAKEN"
	ErrCodeUserOutOfScope   ErrorCode = "USER_OUT_OF_SCOPE"
	ErrCodePasswordMismatch ErrorCode = "PASSWORD_MISMATCH"
	ErrCodeUserNotArchived  ErrorCode = "USER_NOT_ARCHIVED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
		messages := make([]string, len(validationErrors.Errors))
		for i, err := range validationErrors.Errors {
			messages[i] = err.Message
		}
		return strings.Join(messages, "; ")
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches two AppErrors by type and code so that sentinel values survive
// WithCause copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy carrying cause. Sentinels are shared, never mutate them.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewMethodNotAllowedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeMethodNotAllowed,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusMethodNotAllowed,
	}
}

func NewExpectationFailedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExpectationFailed,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusExpectationFailed,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidBody = NewValidationError("Invalid request body", ErrCodeInvalidBody)
	ErrRateLimited = &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       ErrCodeRateLimited,
		Message:    "Rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInvalidCredentials = NewUnauthorizedError("Invalid credentials", ErrCodeInvalidCredentials)
	ErrMissingToken       = NewUnauthorizedError("Missing authorization token", ErrCodeMissingToken)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrTokenRevoked       = NewUnauthorizedError("Token has been revoked", ErrCodeTokenRevoked)
	ErrTokenUnknown       = NewUnauthorizedError("Token is not recognised", ErrCodeTokenUnknown)
	ErrLedgerUnavailable  = NewUnauthorizedError("Token state could not be verified", ErrCodeLedgerUnavailable)
	ErrRenewNotAllowed    = NewMethodNotAllowedError("Token renewal is disabled", ErrCodeRenewNotAllowed)
	ErrTokenMismatch      = NewUnauthorizedError("Access and refresh tokens do not belong together", ErrCodeTokenMismatch)
	ErrRoleNotPermitted   = NewForbiddenError("Role is not permitted to perform this action", ErrCodeRoleNotPermitted)
	ErrAdminNotConfigured = NewExpectationFailedError("Admin credentials are not configured", ErrCodeAdminNotConfigured)
	ErrNodeNotFound       = NewNotFoundError("Node not found", ErrCodeNodeNotFound)
	ErrParentNotFound     = NewNotFoundError("Parent node not found", ErrCodeParentNotFound)
	ErrNodeNameTaken      = NewConflictError("Node name already exists", ErrCodeNodeNameTaken)
	ErrNodeHasChildren    = NewMethodNotAllowedError("Node with children cannot be archived", ErrCodeNodeHasChildren)
	ErrNodeNotOwned       = NewForbiddenError("Node is not created or managed by you", ErrCodeNodeNotOwned)
	ErrNodeOutOfScope     = NewForbiddenError("Node is outside of your hierarchy", ErrCodeNodeOutOfScope)
	ErrParentRequired     = NewValidationError("parent is required for every node except the root", ErrCodeParentRequired)
	ErrRootHasNoParent    = NewValidationError("the first node cannot have a parent", ErrCodeRootHasNoParent)
	ErrNodeNotArchived    = NewMethodNotAllowedError("Node is not archived", ErrCodeNodeNotArchived)
	ErrUserNotFound       = NewNotFoundError("User not found", ErrCodeUserNotFound)
	ErrEmailTaken         = NewConflictError("Email already exists", ErrCodeEmailTaken)
	ErrUserOutOfScope     = NewForbiddenError("User is outside of your hierarchy", ErrCodeUserOutOfScope)
	ErrPasswordMismatch   = NewMethodNotAllowedError("Old password does not match", ErrCodePasswordMismatch)
	ErrUserNotArchived    = NewMethodNotAllowedError("User is not archived", ErrCodeUserNotArchived)
)

// IsAppError unwraps err until it finds an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
