// Package passkey implements WebAuthn passkey login and linking. Assertions
// are verified cryptographically against the stored credential; challenges
// are single-use, server-held, and expire after 60 seconds.
package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName    string        `env:"AUTHGATE_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"AuthGate"`
	RPID             string        `env:"AUTHGATE_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins        []string      `env:"AUTHGATE_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTimeout time.Duration `env:"AUTHGATE_WEBAUTHN_CHALLENGE_TTL"   envDefault:"60s"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		cfg = Config{}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = "AuthGate"
	}
	if cfg.RPID == "" {
		cfg.RPID = "localhost"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"https://" + cfg.RPID}
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 60 * time.Second
	}
	return cfg
}

// NewWebAuthn builds the relying-party verifier from the config, enforcing
// the challenge timeout on both ceremonies.
func NewWebAuthn(cfg Config) (*webauthn.WebAuthn, error) {
	timeout := webauthn.TimeoutConfig{
		Enforce:    true,
		Timeout:    cfg.ChallengeTimeout,
		TimeoutUVD: cfg.ChallengeTimeout,
	}
	return webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
		Timeouts: webauthn.TimeoutsConfig{
			Login:        timeout,
			Registration: timeout,
		},
	})
}
