// Package sentinel holds the error values stores return for facts about
// persisted rows. Services match them with errors.Is and map them onto
// challenge failures.
package sentinel

import "errors"

var (
	// ErrNotFound means no identity, provider or secret matched the lookup.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a write or migration step met a row it cannot
	// reconcile, such as a duplicate key or an unknown schema version.
	ErrConflict = errors.New("conflict")
)
