package models

import (
	"errors"
	"fmt"
)

// ParseReason classifies why a raw challenge could not be turned into a Challenge.
type ParseReason string

const (
	// ParseInvalidChallenge covers malformed input, bad metadata, duplicate
	// enrollments and any failure without a more specific reason.
	ParseInvalidChallenge ParseReason = "INVALID_CHALLENGE"
	// ParseConnection means the metadata could not be fetched.
	ParseConnection ParseReason = "CONNECTION"
	// ParseInvalidIdentityProvider means no enrolled provider matches an authentication challenge.
	ParseInvalidIdentityProvider ParseReason = "INVALID_IDENTITY_PROVIDER"
	// ParseNoIdentities means the provider is known but no usable identity matches.
	ParseNoIdentities ParseReason = "NO_IDENTITIES"
	// ParseAccountBlocked means the only matching identity is blocked.
	ParseAccountBlocked ParseReason = "ACCOUNT_BLOCKED"
)

// CompleteReason classifies why completing a challenge failed.
type CompleteReason string

const (
	CompleteConnection      CompleteReason = "CONNECTION"
	CompleteInvalidResponse CompleteReason = "INVALID_RESPONSE"
	// CompleteSecurity covers secret storage failures and wrong credentials.
	CompleteSecurity CompleteReason = "SECURITY"
	CompleteUnknown  CompleteReason = "UNKNOWN"
	// Authentication outcomes reported by the server.
	CompleteAccountBlocked   CompleteReason = "ACCOUNT_BLOCKED"
	CompleteInvalidChallenge CompleteReason = "INVALID_CHALLENGE"
	CompleteInvalidRequest   CompleteReason = "INVALID_REQUEST"
	CompleteInvalidUserID    CompleteReason = "INVALID_USER_ID"
)

// ParseFailure is returned when a raw challenge cannot be parsed. Title and
// Message are safe to show to users; Err is for logs only.
type ParseFailure struct {
	Kind    Kind
	Reason  ParseReason
	Title   string
	Message string
	Err     error
}

func (f *ParseFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("parse %s challenge [%s]: %s: %v", f.Kind, f.Reason, f.Message, f.Err)
	}
	return fmt.Sprintf("parse %s challenge [%s]: %s", f.Kind, f.Reason, f.Message)
}

func (f *ParseFailure) Unwrap() error {
	return f.Err
}

// CompleteFailure is returned when completing a challenge fails.
type CompleteFailure struct {
	Kind    Kind
	Reason  CompleteReason
	Title   string
	Message string
	Err     error
	// RemainingAttempts is set when the server rejected a response but the
	// account is not blocked yet.
	RemainingAttempts *int
	// BlockedMinutes is set when the server reports a temporary block.
	BlockedMinutes *int
}

func (f *CompleteFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("complete %s challenge [%s]: %s: %v", f.Kind, f.Reason, f.Message, f.Err)
	}
	return fmt.Sprintf("complete %s challenge [%s]: %s", f.Kind, f.Reason, f.Message)
}

func (f *CompleteFailure) Unwrap() error {
	return f.Err
}

// ParseReasonOf extracts the reason from a *ParseFailure, or ParseInvalidChallenge.
func ParseReasonOf(err error) ParseReason {
	var f *ParseFailure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ParseInvalidChallenge
}

// CompleteReasonOf extracts the reason from a *CompleteFailure, or CompleteUnknown.
func CompleteReasonOf(err error) CompleteReason {
	var f *CompleteFailure
	if errors.As(err, &f) {
		return f.Reason
	}
	return CompleteUnknown
}
