package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/walletlink/internal/adminapi"
	"github.com/danmuck/walletlink/internal/correlator"
	"github.com/danmuck/walletlink/internal/protocol/frame"
	"github.com/danmuck/walletlink/internal/transport"
	"github.com/danmuck/walletlink/internal/wallet"
)

var (
	ErrInvalidConsentMode = errors.New("link: invalid consent mode")
	ErrInvalidStoreKind   = errors.New("link: invalid account store")
	ErrNoChannel          = errors.New("link: neither host bridge nor parent url configured")
	ErrRedisURLRequired   = errors.New("link: redis account store requires redis_url")
)

// ConsentMode selects how wallet operations are approved.
type ConsentMode string

const (
	ConsentAuto   ConsentMode = "auto"
	ConsentPrompt ConsentMode = "prompt"
	ConsentDeny   ConsentMode = "deny"
)

// StoreKind selects where the signed-in account set lives.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreRedis  StoreKind = "redis"
)

// ServiceConfig configures the walletlinkd runtime.
type ServiceConfig struct {
	Correlator correlator.Config
	Wallet     wallet.Config
	// HostBridge speaks native messaging over stdin/stdout.
	HostBridge bool
	Frame      frame.Limits
	// Parent.URL empty disables the parent-frame channel.
	Parent       transport.ParentConfig
	Admin        adminapi.Config
	AdminEnabled bool
	Consent      ConsentMode
	AccountStore StoreKind
	RedisURL     string
	RedisKey     string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Correlator:   correlator.DefaultConfig(),
		Wallet:       wallet.DefaultConfig(),
		HostBridge:   true,
		Frame:        frame.DefaultLimits(),
		Parent:       transport.DefaultParentConfig(),
		Admin:        adminapi.DefaultConfig(),
		AdminEnabled: true,
		Consent:      ConsentPrompt,
		AccountStore: StoreMemory,
		RedisKey:     wallet.DefaultRedisKey,
	}
}

func (c ServiceConfig) Validate() error {
	switch c.Consent {
	case ConsentAuto, ConsentPrompt, ConsentDeny:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidConsentMode, c.Consent)
	}
	switch c.AccountStore {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return ErrRedisURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStoreKind, c.AccountStore)
	}
	if !c.HostBridge && strings.TrimSpace(c.Parent.URL) == "" {
		return ErrNoChannel
	}
	return nil
}
