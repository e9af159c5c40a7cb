// Package wallet is the wallet app exposed to dApps: every operation waits
// for user consent, then performs one or two correlated round trips with the
// host wallet.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/walletlink/internal/consent"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoReceiver       = errors.New("wallet: no receiver found to send the transaction to")
	ErrInvokerRequired  = errors.New("wallet: invoker required")
	ErrProviderRequired = errors.New("wallet: consent provider required")
)

// Invoker performs one correlated call. correlator.Correlator satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, method envelope.Method, args envelope.Args, timeout time.Duration) (json.RawMessage, error)
}

type Config struct {
	// EmbeddedApp is set when running inside the wallet's own app, which
	// answers pings more slowly.
	EmbeddedApp         bool
	PingTimeout         time.Duration
	EmbeddedPingTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PingTimeout:         1000 * time.Millisecond,
		EmbeddedPingTimeout: 3000 * time.Millisecond,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.EmbeddedPingTimeout <= 0 {
		c.EmbeddedPingTimeout = d.EmbeddedPingTimeout
	}
	return c
}

func (c Config) pingTimeout() time.Duration {
	if c.EmbeddedApp {
		return c.EmbeddedPingTimeout
	}
	return c.PingTimeout
}

type App struct {
	cfg      Config
	invoker  Invoker
	provider consent.Provider
	store    AccountStore

	// signMu serializes sign-in and sign-out so the account set changes
	// in round-trip order.
	signMu sync.Mutex
}

// NewApp wires the app. A nil store keeps accounts in memory.
func NewApp(cfg Config, invoker Invoker, provider consent.Provider, store AccountStore) (*App, error) {
	if invoker == nil {
		return nil, ErrInvokerRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &App{
		cfg:      cfg.WithDefaults(),
		invoker:  invoker,
		provider: provider,
		store:    store,
	}, nil
}

func (a *App) GetAccounts(ctx context.Context) ([]Account, error) {
	return a.store.Load(ctx)
}

// SignIn checks the host is alive with a short ping, then asks it to sign in.
func (a *App) SignIn(ctx context.Context, params SignInParams) ([]Account, error) {
	a.signMu.Lock()
	defer a.signMu.Unlock()

	req := consent.Request{Title: "sign-in-a", Button: "sign-in-a"}
	return consent.Approved(ctx, a.provider, req, func(ctx context.Context) ([]Account, error) {
		if _, err := a.invoker.Invoke(ctx, envelope.MethodPing, envelope.Args{}, a.cfg.pingTimeout()); err != nil {
			return nil, err
		}
		args, err := toArgs(params)
		if err != nil {
			return nil, err
		}
		raw, err := a.invoker.Invoke(ctx, envelope.MethodSignIn, args, 0)
		if err != nil {
			return nil, err
		}
		var accounts []Account
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return nil, fmt.Errorf("wallet: decode sign_in reply: %w", err)
		}
		if accounts == nil {
			accounts = []Account{}
		}
		if err := a.store.Replace(ctx, accounts); err != nil {
			return nil, err
		}
		log.Info().Msgf("wallet.App.SignIn accounts=%d", len(accounts))
		return accounts, nil
	})
}

// SignOut only contacts the host when someone is signed in.
func (a *App) SignOut(ctx context.Context) error {
	a.signMu.Lock()
	defer a.signMu.Unlock()

	req := consent.Request{Title: "sign-out", Button: "sign-out"}
	_, err := consent.Approved(ctx, a.provider, req, func(ctx context.Context) (struct{}, error) {
		accounts, err := a.store.Load(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if len(accounts) == 0 {
			return struct{}{}, nil
		}
		if _, err := a.invoker.Invoke(ctx, envelope.MethodSignOut, envelope.Args{}, 0); err != nil {
			return struct{}{}, err
		}
		log.Info().Msgf("wallet.App.SignOut cleared accounts=%d", len(accounts))
		return struct{}{}, a.store.Clear(ctx)
	})
	return err
}

func (a *App) SignMessage(ctx context.Context, params SignMessageParams) (SignedMessage, error) {
	req := consent.Request{Title: "sign-message", Button: "sign-message"}
	return consent.Approved(ctx, a.provider, req, func(ctx context.Context) (SignedMessage, error) {
		args, err := toArgs(params)
		if err != nil {
			return SignedMessage{}, err
		}
		args["nonce"] = byteValues(params.Nonce)
		raw, err := a.invoker.Invoke(ctx, envelope.MethodSignMessage, args, 0)
		if err != nil {
			return SignedMessage{}, err
		}
		var signed SignedMessage
		if err := json.Unmarshal(raw, &signed); err != nil {
			return SignedMessage{}, fmt.Errorf("wallet: decode sign_message reply: %w", err)
		}
		return signed, nil
	})
}

// SignAndSendTransaction returns the host's execution outcome untouched.
func (a *App) SignAndSendTransaction(ctx context.Context, tx Transaction) (json.RawMessage, error) {
	req := consent.Request{Title: "signAndSendTransaction", Button: "signAndSendTransaction"}
	return consent.Approved(ctx, a.provider, req, func(ctx context.Context) (json.RawMessage, error) {
		if tx.ReceiverID == "" {
			return nil, ErrNoReceiver
		}
		args, err := toArgs(tx)
		if err != nil {
			return nil, err
		}
		return a.invoker.Invoke(ctx, envelope.MethodSignAndSendTransaction, args, 0)
	})
}

func (a *App) SignAndSendTransactions(ctx context.Context, params SignAndSendTransactionsParams) (json.RawMessage, error) {
	req := consent.Request{Title: "signAndSendTransactions", Button: "signAndSendTransactions"}
	return consent.Approved(ctx, a.provider, req, func(ctx context.Context) (json.RawMessage, error) {
		args, err := toArgs(params)
		if err != nil {
			return nil, err
		}
		return a.invoker.Invoke(ctx, envelope.MethodSignAndSendTransactions, args, 0)
	})
}
