// Package adminapi exposes the wallet app and the raw correlator over a local
// HTTP API for operators and integration harnesses.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/walletlink/internal/correlator"
	"github.com/danmuck/walletlink/internal/observability"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/transport"
	"github.com/danmuck/walletlink/internal/wallet"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var ErrWalletRequired = errors.New("adminapi: wallet app required")

// Wallet is the consumer API served under /v1. *wallet.App satisfies it.
type Wallet interface {
	GetAccounts(ctx context.Context) ([]wallet.Account, error)
	SignIn(ctx context.Context, params wallet.SignInParams) ([]wallet.Account, error)
	SignOut(ctx context.Context) error
	SignMessage(ctx context.Context, params wallet.SignMessageParams) (wallet.SignedMessage, error)
	SignAndSendTransaction(ctx context.Context, tx wallet.Transaction) (json.RawMessage, error)
	SignAndSendTransactions(ctx context.Context, params wallet.SignAndSendTransactionsParams) (json.RawMessage, error)
}

// Invoker issues raw correlated calls. *correlator.Correlator satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, method envelope.Method, args envelope.Args, timeout time.Duration) (json.RawMessage, error)
	Pending() []correlator.PendingCall
}

// Router reports which channel outbound envelopes would take.
type Router interface {
	Route() transport.Channel
}

type Deps struct {
	Wallet  Wallet
	Invoker Invoker
	Router  Router
}

type Config struct {
	Listen      string
	Node        string
	RatePerSec  float64
	RateBurst   int
	CORSOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Listen:     "127.0.0.1:7420",
		Node:       "walletlinkd",
		RatePerSec: 10,
		RateBurst:  20,
	}
}

type Server struct {
	cfg     Config
	deps    Deps
	router  *gin.Engine
	started time.Time
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Wallet == nil {
		return nil, ErrWalletRequired
	}
	if strings.TrimSpace(cfg.Node) == "" {
		cfg.Node = DefaultConfig().Node
	}
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(observability.RequestLogger(log.Logger, RequestIDHeader))
	r.Use(observability.RequestMetricsMiddleware(cfg.Node))
	if origins := normalizeOrigins(cfg.CORSOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type", RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes(newIPLimiter(cfg.RatePerSec, cfg.RateBurst, 0))
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve answers on ln until ctx is done, then drains for up to five seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Msgf("adminapi.Server.Serve listening addr=%s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("adminapi.Server.Serve stopped")
		return nil
	}
}

// ListenAndServe binds cfg.Listen and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
