package api

// Response codes returned by the tiqr server in "responseCode".
const (
	CodeSuccess          = 1
	CodeInvalidResponse  = 201
	CodeInvalidRequest   = 202
	CodeInvalidChallenge = 203
	CodeAccountBlocked   = 204
	CodeInvalidUserID    = 205
)

// ProtocolHeader carries the protocol version in both directions.
const ProtocolHeader = "X-TIQR-Protocol-Version"

// Metadata is the document served at an enrollment metadata URL.
type Metadata struct {
	Service  ServiceMetadata  `json:"service"`
	Identity IdentityMetadata `json:"identity"`
}

type ServiceMetadata struct {
	DisplayName       string `json:"displayName"`
	Identifier        string `json:"identifier"`
	AuthenticationURL string `json:"authenticationUrl"`
	OCRASuite         string `json:"ocraSuite"`
	InfoURL           string `json:"infoUrl,omitempty"`
	LogoURL           string `json:"logoUrl,omitempty"`
	EnrollmentURL     string `json:"enrollmentUrl"`
}

type IdentityMetadata struct {
	DisplayName string `json:"displayName"`
	Identifier  string `json:"identifier"`
}

// Missing returns the names of required fields left empty by the server.
func (m *Metadata) Missing() []string {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	check("service.displayName", m.Service.DisplayName)
	check("service.identifier", m.Service.Identifier)
	check("service.authenticationUrl", m.Service.AuthenticationURL)
	check("service.ocraSuite", m.Service.OCRASuite)
	check("service.enrollmentUrl", m.Service.EnrollmentURL)
	check("identity.identifier", m.Identity.Identifier)
	return missing
}

// Registration identifies where push notifications for this device go.
type Registration struct {
	Language            string
	NotificationType    string
	NotificationAddress string
}

// EnrollRequest registers a new secret with the server.
type EnrollRequest struct {
	Registration
	// SecretHex is the lowercase hex encoding of the identity secret.
	SecretHex string
}

// EnrollResponse is the decoded reply to an enrollment POST.
type EnrollResponse struct {
	Code int `json:"responseCode"`
	// ProtocolVersion comes from ProtocolHeader; zero when absent.
	ProtocolVersion int `json:"-"`
}

// AuthenticateRequest submits an OCRA response.
type AuthenticateRequest struct {
	Registration
	SessionKey string
	UserID     string
	Response   string
}

// AuthenticateResponse is the decoded reply to an authentication POST.
type AuthenticateResponse struct {
	Code int `json:"responseCode"`
	// AttemptsLeft accompanies CodeInvalidResponse.
	AttemptsLeft *int `json:"attemptsLeft,omitempty"`
	// Duration is the block length in minutes and accompanies CodeAccountBlocked.
	Duration        *int `json:"duration,omitempty"`
	ProtocolVersion int  `json:"-"`
}
