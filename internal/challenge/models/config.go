package models

// Config carries the process-wide settings the challenge components need.
// It is passed to constructors; nothing reads it from globals.
type Config struct {
	ProtocolVersion   int
	CompatibilityMode bool
	// EnforcedHosts are lowercase host suffixes. Empty disables host checks.
	EnforcedHosts   []string
	EnrollPathParam string
	AuthPathParam   string
	EnrollScheme    string
	AuthScheme      string
	Language        string
	// NotificationType and NotificationAddress register this device for push.
	NotificationType    string
	NotificationAddress string
}

// DefaultConfig matches the stock tiqr deployment.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion:   2,
		CompatibilityMode: true,
		EnrollPathParam:   "tiqrenroll",
		AuthPathParam:     "tiqrauth",
		EnrollScheme:      "tiqrenroll",
		AuthScheme:        "tiqrauth",
		Language:          "en",
		NotificationType:  "FCM_DIRECT",
	}
}
