package correlator

import (
	"strings"

	"github.com/danmuck/walletlink/internal/protocol/envelope"
)

// Config fixes the envelope fields that do not vary per call.
type Config struct {
	Source string
	Href   string
	// MaxNonceAttempts bounds re-rolls when a fresh nonce collides with an
	// in-flight one.
	MaxNonceAttempts int
	// RecentNonces is how many settled nonces are remembered. They are not
	// reissued, and a reply carrying one is reported as late.
	RecentNonces int
}

func DefaultConfig() Config {
	return Config{
		Source:           envelope.DefaultSource,
		MaxNonceAttempts: 4,
		RecentNonces:     1024,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Source) == "" {
		c.Source = d.Source
	}
	if c.MaxNonceAttempts <= 0 {
		c.MaxNonceAttempts = d.MaxNonceAttempts
	}
	if c.RecentNonces <= 0 {
		c.RecentNonces = d.RecentNonces
	}
	return c
}
