package audit

import (
	"time"

	"github.com/google/uuid"
)

// Category separates security-relevant events from routine ones.
type Category string

const (
	CategorySecurity   Category = "security"
	CategoryOperations Category = "operations"
)

// Action names what happened to an identity.
type Action string

const (
	ActionEnrolled            Action = "enrolled"
	ActionEnrollFailed        Action = "enroll_failed"
	ActionAuthenticated       Action = "authenticated"
	ActionAuthenticateFailed  Action = "authenticate_failed"
	ActionOTPGenerated        Action = "otp_generated"
	ActionIdentityBlocked     Action = "identity_blocked"
	ActionBiometricUpgraded   Action = "biometric_upgraded"
	ActionBiometricDisabled   Action = "biometric_disabled"
	ActionBiometricOfferMuted Action = "biometric_offer_stopped"
	ActionIdentityDeleted     Action = "identity_deleted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  Category
	Timestamp time.Time
	Action    Action
	// IdentityID is zero when the identity was never persisted.
	IdentityID       int64
	Identity         string
	IdentityProvider string
	ServiceProvider  string
	Reason           string
}

// categoryOf returns the default category for an action.
func categoryOf(a Action) Category {
	switch a {
	case ActionEnrollFailed, ActionAuthenticateFailed, ActionIdentityBlocked,
		ActionBiometricUpgraded, ActionBiometricDisabled, ActionIdentityDeleted:
		return CategorySecurity
	default:
		return CategoryOperations
	}
}
