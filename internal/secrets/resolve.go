package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/config"
)

const secretReadTimeout = 15 * time.Second

// Resolve picks the login for one database. A password set in the
// environment wins; otherwise each enabled manager is tried in order at
// the configured secret path. SQLite needs no login.
func Resolve(ctx context.Context, db config.DatabaseConfig, label string, managers []SecretManager, log *zap.Logger) (*Credentials, error) {
	log = log.With(zap.String("db", label))
	envUser := strings.ToUpper(label) + "_USER"

	if db.Dialect == "sqlite" {
		return &Credentials{}, nil
	}
	if db.Password != "" {
		if db.User == "" {
			return nil, fmt.Errorf("password provided for %s DB via env var, but username (%s) is missing", label, envUser)
		}
		return &Credentials{Username: db.User, Password: db.Password}, nil
	}
	if db.SecretPath == "" {
		return nil, fmt.Errorf("no password and no secret path configured for %s DB", label)
	}

	var errs error
	tried := 0
	for _, sm := range managers {
		if sm == nil || !sm.IsEnabled() {
			continue
		}
		tried++
		getCtx, cancel := context.WithTimeout(ctx, secretReadTimeout)
		creds, err := sm.GetCredentials(getCtx, db.SecretPath, db.UsernameKey, db.PasswordKey)
		cancel()
		if err != nil {
			log.Warn("Failed to retrieve credentials from secret manager",
				zap.String("manager_type", fmt.Sprintf("%T", sm)),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		if creds.Username == "" {
			creds.Username = db.User
		}
		if creds.Username == "" {
			return nil, fmt.Errorf("password retrieved for %s, but username is missing in both secret and %s", label, envUser)
		}
		return creds, nil
	}
	if tried == 0 {
		return nil, fmt.Errorf("secret path configured for %s DB but no secret manager is enabled", label)
	}
	return nil, fmt.Errorf("could not load credentials for %s DB from %s: %w", label, db.SecretPath, errs)
}
