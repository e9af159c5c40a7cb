// Package link assembles the walletlinkd runtime: transports feeding one
// inbound bus, the correlator, consent, the wallet app and the admin API.
package link

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/danmuck/walletlink/internal/adminapi"
	"github.com/danmuck/walletlink/internal/consent"
	"github.com/danmuck/walletlink/internal/correlator"
	"github.com/danmuck/walletlink/internal/inbox"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/transport"
	"github.com/danmuck/walletlink/internal/wallet"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Streams are the process handles the service talks through.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	// Prompt answers consent questions; nil opens /dev/tty on demand.
	Prompt    io.Reader
	PromptOut io.Writer
}

func DefaultStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, PromptOut: os.Stderr}
}

// Service runs the walletlinkd lifecycle.
type Service struct {
	cfg     ServiceConfig
	streams Streams

	bus        *inbox.Bus
	env        transport.Environment
	parent     *transport.ParentLink
	selector   *transport.Selector
	correlator *correlator.Correlator
	app        *wallet.App
	admin      *adminapi.Server
	redis      *redis.Client
	tty        *os.File

	ready     chan struct{}
	closeOnce sync.Once
}

func NewService(cfg ServiceConfig) *Service {
	return NewServiceWithStreams(cfg, DefaultStreams())
}

func NewServiceWithStreams(cfg ServiceConfig, streams Streams) *Service {
	if streams.PromptOut == nil {
		streams.PromptOut = io.Discard
	}
	return &Service{
		cfg:     cfg,
		streams: streams,
		ready:   make(chan struct{}),
	}
}

// Run blocks until SIGINT/SIGTERM or until the host closes stdin.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

func (s *Service) RunContext(ctx context.Context) error {
	if err := s.bootstrap(ctx); err != nil {
		_ = s.close()
		return err
	}
	close(s.ready)
	err := s.serve(ctx)
	return multierr.Append(err, s.close())
}

// Ready is closed once bootstrap has wired every component.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) App() *wallet.App {
	return s.app
}

func (s *Service) Correlator() *correlator.Correlator {
	return s.correlator
}

func (s *Service) Selector() *transport.Selector {
	return s.selector
}

func (s *Service) bootstrap(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.bus = inbox.NewBus()

	if s.cfg.HostBridge {
		if s.streams.Stdout == nil || s.streams.Stdin == nil {
			return fmt.Errorf("link: host bridge needs stdin and stdout")
		}
		s.env.Host = transport.NewNativeHost(s.streams.Stdout, s.cfg.Frame)
	}
	if strings.TrimSpace(s.cfg.Parent.URL) != "" {
		parent, err := transport.NewParentLink(s.cfg.Parent)
		if err != nil {
			return err
		}
		s.parent = parent
		s.env.Parent = parent
	}
	s.selector = transport.NewSelector(s.env)

	c, err := correlator.New(s.cfg.Correlator, s.selector, s.bus)
	if err != nil {
		return err
	}
	s.correlator = c

	store, err := s.accountStore(ctx)
	if err != nil {
		return err
	}
	provider, err := s.consentProvider()
	if err != nil {
		return err
	}
	app, err := wallet.NewApp(s.cfg.Wallet, s.correlator, provider, store)
	if err != nil {
		return err
	}
	s.app = app

	if s.cfg.AdminEnabled && strings.TrimSpace(s.cfg.Admin.Listen) != "" {
		admin, err := adminapi.New(s.cfg.Admin, adminapi.Deps{
			Wallet:  s.app,
			Invoker: s.correlator,
			Router:  s.selector,
		})
		if err != nil {
			return err
		}
		s.admin = admin
	}

	log.Info().Msgf(
		"link.Service.bootstrap ready host_bridge=%t parent=%q consent=%s store=%s admin=%t",
		s.cfg.HostBridge,
		s.cfg.Parent.URL,
		s.cfg.Consent,
		s.cfg.AccountStore,
		s.admin != nil,
	)
	return nil
}

func (s *Service) accountStore(ctx context.Context) (wallet.AccountStore, error) {
	if s.cfg.AccountStore != StoreRedis {
		return wallet.NewMemoryStore(), nil
	}
	client, err := wallet.DialRedis(ctx, s.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	s.redis = client
	return wallet.NewRedisStore(client, s.cfg.RedisKey), nil
}

func (s *Service) consentProvider() (consent.Provider, error) {
	switch s.cfg.Consent {
	case ConsentAuto:
		log.Warn().Msg("link.Service.consentProvider auto-approving every request")
		return consent.AutoApprove{}, nil
	case ConsentDeny:
		return consent.Deny{}, nil
	}
	in := s.streams.Prompt
	if in == nil {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return nil, fmt.Errorf("link: open terminal for consent prompts: %w", err)
		}
		s.tty = tty
		in = tty
	}
	return consent.NewPrompt(in, s.streams.PromptOut), nil
}

// serve runs the inbound pumps and the admin API until ctx is done or the
// host closes stdin.
func (s *Service) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.HostBridge {
		// A blocked stdin read cannot be interrupted, so this pump stays
		// outside the group and only ends the run when the host hangs up.
		go func() {
			defer cancel()
			if err := transport.ReadNative(ctx, s.streams.Stdin, s.cfg.Frame, s.publish); err != nil && ctx.Err() == nil {
				log.Error().Msgf("link.Service.serve native pump stopped err=%v", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.parent != nil {
		g.Go(func() error {
			return s.parent.Run(gctx, s.publish)
		})
	}
	if s.admin != nil {
		g.Go(func() error {
			return s.admin.ListenAndServe(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func (s *Service) publish(raw []byte) {
	s.deliver(envelope.ParseInbound(raw))
}

// deliver hands in to the bus and reports what became of it: claimed,
// ignored (not a reply), late (its call already settled) or stray.
func (s *Service) deliver(in envelope.Inbound) string {
	if n := s.bus.Deliver(in); n > 0 {
		return "claimed"
	}
	if !in.IsReply {
		log.Debug().Msgf("link.Service.publish ignored non-reply bytes=%d", len(in.Raw))
		return "ignored"
	}
	if outcome, ok := s.correlator.Settled(in.Reply.Nonce); ok {
		log.Warn().Msgf("link.Service.publish late reply nonce=%s settled=%s", in.Reply.Nonce, outcome)
		return "late"
	}
	log.Warn().Msgf("link.Service.publish reply for unknown nonce=%s", in.Reply.Nonce)
	return "stray"
}

func (s *Service) close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.bus != nil {
			s.bus.Close()
		}
		err = multierr.Append(err, s.env.Close())
		if s.redis != nil {
			err = multierr.Append(err, s.redis.Close())
		}
		if s.tty != nil {
			err = multierr.Append(err, s.tty.Close())
		}
	})
	return err
}
