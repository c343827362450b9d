package secrets

import "context"

// Credentials are the login for one database.
type Credentials struct {
	Username string
	Password string
}

// SecretManager fetches database credentials from a secret backend.
type SecretManager interface {
	// GetCredentials reads the secret at path and picks the username and
	// password out of it by key.
	GetCredentials(ctx context.Context, path, usernameKey, passwordKey string) (*Credentials, error)

	IsEnabled() bool
}
