package apperr

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Machine-readable error codes returned in the "error" field of API
// responses. Controllers and services share these so clients can branch on
// them without parsing messages.
const (
	CodeValidation      = "validation_error"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeQuotaExceeded   = "quota_exceeded"
	CodeNoActivePlan    = "no_active_plan"
	CodeGone            = "gone"
	CodeInternal        = "internal_server_error"
	CodePasswordNeeded  = "password_required"
	CodeInvalidPassword = "invalid_password"
)

// Error carries a code, an HTTP status and a client-safe message. Details is
// attached verbatim to the JSON response (e.g. a quota snapshot); Err is the
// internal cause and never leaves the process.
type Error struct {
	Code    string
	Status  int
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches extra response data (returns the same error for chaining).
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Status: fiber.StatusBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Status: fiber.StatusUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Status: fiber.StatusForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Status: fiber.StatusNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Status: fiber.StatusConflict, Message: message}
}

// QuotaExceeded carries the usage snapshot used for the denial so the client
// sees the exact count behind the decision.
func QuotaExceeded(message string, snapshot interface{}) *Error {
	return &Error{Code: CodeQuotaExceeded, Status: fiber.StatusForbidden, Message: message, Details: snapshot}
}

func NoActivePlan(message string) *Error {
	return &Error{Code: CodeNoActivePlan, Status: fiber.StatusForbidden, Message: message}
}

func Gone(message string) *Error {
	return &Error{Code: CodeGone, Status: fiber.StatusGone, Message: message}
}

// Internal wraps a persistence/storage failure. The cause is logged by
// Respond; the client only ever sees a generic message.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Status: fiber.StatusInternalServerError, Message: "Something went wrong", Err: err}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Respond writes the JSON error response in the API error shape. Unknown
// error values are treated as internal failures and surfaced generically.
func Respond(c *fiber.Ctx, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}

	if e.Err != nil {
		log.Printf("%s %s: %v", c.Method(), c.Path(), e.Err)
	}

	body := fiber.Map{
		"error":   e.Code,
		"message": e.Message,
	}
	if e.Details != nil {
		body["quota"] = e.Details
	}

	return c.Status(e.Status).JSON(body)
}
