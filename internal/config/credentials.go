package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Credentials are the Volcengine key pair for the Jimeng video backend. The
// pair is optional as a whole: with neither key set the backend is not
// registered.
type Credentials struct {
	AccessKey string
	SecretKey string
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_key", RedactKey(c.AccessKey)),
		slog.Bool("secret_key_set", c.SecretKey != ""),
	)
}

type CredentialsOptions struct {
	AccessKey *string
	SecretKey *string
}

type MissingCredentialsError struct {
	Missing []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing credentials: %s", strings.Join(e.Missing, ", "))
}

// LoadCredentials resolves the pair from overrides, then the environment.
// Exactly one key present is an error.
func LoadCredentials(opts CredentialsOptions) (Credentials, error) {
	c := Credentials{
		AccessKey: resolveSecret(opts.AccessKey, EnvAccessKey),
		SecretKey: resolveSecret(opts.SecretKey, EnvSecretKey),
	}

	switch {
	case c.AccessKey == "" && c.SecretKey == "":
		return Credentials{}, nil
	case c.AccessKey == "":
		return Credentials{}, &MissingCredentialsError{Missing: []string{EnvAccessKey}}
	case c.SecretKey == "":
		return Credentials{}, &MissingCredentialsError{Missing: []string{EnvSecretKey}}
	}
	return c, nil
}

func resolveSecret(override *string, envKey string) string {
	if override != nil {
		return strings.TrimSpace(*override)
	}
	v, _ := lookupEnvNonEmpty(envKey)
	return v
}

// RedactKey keeps a four character prefix so keys can be told apart in logs.
func RedactKey(key string) string {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return ""
	case len(key) <= 4:
		return "***"
	default:
		return key[:4] + "***"
	}
}
