package models

import "fmt"

const (
	titleEnroll       = "Enrollment failed"
	titleAuthenticate = "Authentication failed"
	titleUnknown      = "Unknown QR code"
)

// NewParseFailure builds a failure with the user-facing text for reason.
func NewParseFailure(kind Kind, reason ParseReason, err error) *ParseFailure {
	return &ParseFailure{
		Kind:    kind,
		Reason:  reason,
		Title:   titleFor(kind),
		Message: parseMessage(kind, reason),
		Err:     err,
	}
}

// NewCompleteFailure builds a failure with the user-facing text for reason.
func NewCompleteFailure(kind Kind, reason CompleteReason, err error) *CompleteFailure {
	return &CompleteFailure{
		Kind:    kind,
		Reason:  reason,
		Title:   titleFor(kind),
		Message: completeMessage(kind, reason),
		Err:     err,
	}
}

// WithMessage replaces the user-facing message.
func (f *CompleteFailure) WithMessage(format string, args ...any) *CompleteFailure {
	f.Message = fmt.Sprintf(format, args...)
	return f
}

// WithMessage replaces the user-facing message.
func (f *ParseFailure) WithMessage(format string, args ...any) *ParseFailure {
	f.Message = fmt.Sprintf(format, args...)
	return f
}

func titleFor(kind Kind) string {
	switch kind {
	case KindEnrollment:
		return titleEnroll
	case KindAuthentication:
		return titleAuthenticate
	default:
		return titleUnknown
	}
}

func parseMessage(kind Kind, reason ParseReason) string {
	switch reason {
	case ParseConnection:
		return "Could not connect to the server. Check your internet connection and try again."
	case ParseInvalidIdentityProvider:
		return "You are not enrolled with this identity provider."
	case ParseNoIdentities:
		return "No account was found for this login request."
	case ParseAccountBlocked:
		return "This account is blocked."
	}
	switch kind {
	case KindEnrollment:
		return "This is not a valid enrollment QR code."
	case KindAuthentication:
		return "This is not a valid login QR code."
	default:
		return "This QR code is not a tiqr code."
	}
}

func completeMessage(kind Kind, reason CompleteReason) string {
	switch reason {
	case CompleteConnection:
		return "Could not connect to the server. Check your internet connection and try again."
	case CompleteInvalidResponse:
		if kind == KindEnrollment {
			return "The server returned an invalid response while enrolling."
		}
		return "The server returned an invalid response."
	case CompleteSecurity:
		if kind == KindEnrollment {
			return "Your account could not be stored securely."
		}
		return "Your PIN or fingerprint could not be verified."
	case CompleteAccountBlocked:
		return "Your account is blocked. Contact your identity provider."
	case CompleteInvalidChallenge:
		return "This login request is no longer valid. Scan a new QR code."
	case CompleteInvalidRequest:
		return "The server rejected this request."
	case CompleteInvalidUserID:
		return "The server does not know this account."
	}
	return "An unexpected error occurred."
}
