package api

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized taxonomy of API call failures.
type ErrorCategory string

const (
	// ErrorTransport means the request never produced a response: DNS, TLS,
	// timeouts and cancelled contexts all land here.
	ErrorTransport ErrorCategory = "transport"

	// ErrorDecode means the server answered with a body we could not read.
	ErrorDecode ErrorCategory = "decode"

	// ErrorStatus means the server answered with a non-2xx status.
	ErrorStatus ErrorCategory = "status"

	ErrorInternal ErrorCategory = "internal"
)

// Error wraps an API failure with its category.
type Error struct {
	Category   ErrorCategory
	Op         string
	URL        string
	StatusCode int
	Underlying error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api %s %s [%s]: status %d", e.Op, e.URL, e.Category, e.StatusCode)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("api %s %s [%s]: %v", e.Op, e.URL, e.Category, e.Underlying)
	}
	return fmt.Sprintf("api %s %s [%s]", e.Op, e.URL, e.Category)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newError(category ErrorCategory, op, url string, underlying error) *Error {
	return &Error{Category: category, Op: op, URL: url, Underlying: underlying}
}

// GetCategory extracts the category from an error, or ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ErrorInternal
}

// IsTransport reports whether err is a connection-level failure.
func IsTransport(err error) bool {
	return GetCategory(err) == ErrorTransport
}
