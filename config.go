package authgate

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the gateway's environment-driven settings. Provider
// credentials are optional; a provider whose credentials are absent is
// simply not mounted.
type Config struct {
	// Addr is the listen address for the HTTPS server.
	Addr string `env:"AUTHGATE_ADDR" envDefault:":3000"`

	// Origin is the externally reachable base URL, used in provider
	// redirect URIs.
	Origin string `env:"ORIGIN" envDefault:"https://localhost:3000"`

	// JWTSecret signs session credentials.
	JWTSecret string `env:"JWT_SECRET,required"`

	// StoragePath is the directory holding the account store document.
	StoragePath string `env:"AUTHGATE_STORAGE_PATH" envDefault:"./data"`

	// StaticDir holds login.html and dashboard.html.
	StaticDir string `env:"AUTHGATE_STATIC_DIR" envDefault:"./public"`

	// AuthTokenCookieName overrides the session cookie name.
	AuthTokenCookieName string `env:"AUTHGATE_COOKIE_NAME"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	AppleClientID     string `env:"APPLE_CLIENT_ID"`
	AppleTeamID       string `env:"APPLE_TEAM_ID"`
	ApplePrivateKey   string `env:"APPLE_PRIVATE_KEY"`
	ApplePrivateKeyID string `env:"APPLE_PRIVATE_KEY_ID"`

	// TLS certificate and key paths. Both must be set to serve HTTPS;
	// otherwise the server falls back to plain HTTP.
	CertFile string `env:"HTTPS_PATH_TO_CERT"`
	KeyFile  string `env:"HTTPS_PATH_TO_KEY"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// GoogleEnabled reports whether Google credentials are configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// AppleEnabled reports whether Apple credentials are configured.
func (c Config) AppleEnabled() bool {
	return c.AppleClientID != "" && c.AppleTeamID != "" && c.ApplePrivateKey != "" && c.ApplePrivateKeyID != ""
}

// TLSEnabled reports whether certificate paths are configured.
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}
