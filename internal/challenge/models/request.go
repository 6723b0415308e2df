package models

import "tiqr/internal/secret"

// CompleteRequest carries a parsed challenge and the credential the user
// entered to complete it. Enrollment always uses a PIN credential.
type CompleteRequest[C Challenge] struct {
	Challenge  C
	Credential secret.Credential
}
