package models

import "net/http"

// ErrorKind classifies scraper errors for HTTP mapping and logging.
type ErrorKind string

const (
	ErrKindValidation         ErrorKind = "validation"
	ErrKindAuthentication     ErrorKind = "authentication"
	ErrKindPoolExhausted      ErrorKind = "pool_exhausted"
	ErrKindQueueFull          ErrorKind = "queue_full"
	ErrKindCircuitOpen        ErrorKind = "circuit_open"
	ErrKindNoHealthyProxies   ErrorKind = "no_healthy_proxies"
	ErrKindCredentialNotFound ErrorKind = "credential_not_found"
	ErrKindTaskNotFound       ErrorKind = "task_not_found"
	ErrKindJobNotFound        ErrorKind = "job_not_found"
	ErrKindTaskTimeout        ErrorKind = "task_timeout"
	ErrKindInternal           ErrorKind = "internal"
)

// Error is the typed error carried through the execution pipeline and
// mapped to the JSON envelope at the HTTP layer.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Meta    map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, status int, defaultMsg, msg string) *Error {
	if msg == "" {
		msg = defaultMsg
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

// NewValidationError returns a 422 validation error. Field-level details
// go into Meta under "fields".
func NewValidationError(msg string, fields []FieldError) *Error {
	err := newError(ErrKindValidation, http.StatusUnprocessableEntity, "Validation error", msg)
	if len(fields) > 0 {
		err.Meta = map[string]interface{}{"fields": fields}
	}
	return err
}

func NewAuthenticationError(msg string) *Error {
	return newError(ErrKindAuthentication, http.StatusUnauthorized, "Invalid or missing service key", msg)
}

func NewPoolExhaustedError(msg string) *Error {
	return newError(ErrKindPoolExhausted, http.StatusServiceUnavailable, "Browser pool exhausted - no instances available", msg)
}

func NewQueueFullError(msg string) *Error {
	return newError(ErrKindQueueFull, http.StatusServiceUnavailable, "Task queue is full", msg)
}

func NewCircuitOpenError(msg string) *Error {
	return newError(ErrKindCircuitOpen, http.StatusServiceUnavailable, "Circuit breaker open for target domain", msg)
}

func NewNoHealthyProxiesError(msg string) *Error {
	return newError(ErrKindNoHealthyProxies, http.StatusServiceUnavailable, "No healthy proxies available", msg)
}

func NewCredentialNotFoundError(msg string) *Error {
	return newError(ErrKindCredentialNotFound, http.StatusBadGateway, "Missing credentials for provider", msg)
}

func NewTaskNotFoundError(msg string) *Error {
	return newError(ErrKindTaskNotFound, http.StatusNotFound, "Task not found", msg)
}

func NewJobNotFoundError(msg string) *Error {
	return newError(ErrKindJobNotFound, http.StatusNotFound, "Job not found", msg)
}

func NewTaskTimeoutError(msg string) *Error {
	return newError(ErrKindTaskTimeout, http.StatusGatewayTimeout, "Task execution timed out", msg)
}

func NewInternalError(msg string) *Error {
	return newError(ErrKindInternal, http.StatusInternalServerError, "Internal server error", msg)
}

// FieldError describes a single field-level validation failure for the
// envelope's meta.fields array.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}
