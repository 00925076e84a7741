package errors

import "fmt"

// Error types for the auth core. Handlers translate every failure into one of
// these at the HTTP boundary; nothing below the handlers writes status codes.
var (
	ErrInvalidCredentials = &ServiceError{
		Code:    "INVALID_CREDENTIALS",
		Message: "Invalid credentials",
		Status:  401,
	}

	// ErrAccountDisabled is surfaced distinctly from invalid credentials:
	// account state is not a secret, unlike identifier existence.
	ErrAccountDisabled = &ServiceError{
		Code:    "ACCOUNT_DISABLED",
		Message: "Account is disabled",
		Status:  401,
	}

	ErrAccountLocked = &ServiceError{
		Code:    "ACCOUNT_LOCKED",
		Message: "Account is temporarily locked",
		Status:  401,
	}

	ErrRateLimitExceeded = &ServiceError{
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Too many attempts, try again later",
		Status:  429,
	}

	ErrUnauthenticated = &ServiceError{
		Code:    "UNAUTHENTICATED",
		Message: "Authentication required",
		Status:  401,
	}

	ErrForbidden = &ServiceError{
		Code:    "FORBIDDEN",
		Message: "Insufficient role for this operation",
		Status:  403,
	}

	ErrInvalidToken = &ServiceError{
		Code:    "INVALID_TOKEN",
		Message: "Invalid or expired token",
		Status:  401,
	}

	ErrInvalidRefreshToken = &ServiceError{
		Code:    "INVALID_REFRESH_TOKEN",
		Message: "Invalid or expired refresh token",
		Status:  401,
	}

	// ErrInvalidRequest is used for syntactically invalid requests (missing or
	// malformed parameters) where a 400 response is appropriate.
	ErrInvalidRequest = &ServiceError{
		Code:    "INVALID_REQUEST",
		Message: "Invalid request",
		Status:  400,
	}

	ErrInternalServer = &ServiceError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
		Status:  500,
	}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Wrap wraps an error with a ServiceError
func Wrap(err error, serviceErr *ServiceError) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Err:     err,
	}
}

// WithMessage returns a copy of serviceErr carrying a more specific
// user-facing message, keeping the code and status.
func WithMessage(serviceErr *ServiceError, message string) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: message,
		Status:  serviceErr.Status,
	}
}
