package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrParentURLRequired  = errors.New("transport: parent url required")
	ErrParentURLInvalid   = errors.New("transport: parent url must be ws:// or wss://")
	ErrParentNotConnected = errors.New("transport: parent not connected")
	ErrOriginMismatch     = errors.New("transport: target origin does not match parent")
	ErrParentClosed       = errors.New("transport: parent link closed")
)

// ParentConfig configures the websocket link to the embedding parent.
type ParentConfig struct {
	URL                string
	SelfURL            string
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	MaxMessageBytes    int64
	MaxConnectAttempts int
	Backoff            BackoffConfig
	// TLS applies to wss:// parents only.
	TLS ParentTLSConfig
}

func DefaultParentConfig() ParentConfig {
	return ParentConfig{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxMessageBytes:  1024 * 1024,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c ParentConfig) WithDefaults() ParentConfig {
	d := DefaultParentConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	return c
}

// ParentLink is the parent-frame channel: a websocket to the page that embeds
// this context.
type ParentLink struct {
	cfg    ParentConfig
	origin string
	dialer websocket.Dialer
	rng    *rand.Rand

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func NewParentLink(cfg ParentConfig) (*ParentLink, error) {
	cfg = cfg.WithDefaults()
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, ErrParentURLRequired
	}
	origin, err := originOf(raw)
	if err != nil {
		return nil, err
	}
	cfg.URL = raw
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	if strings.HasPrefix(origin, "https://") {
		tlsCfg, err := cfg.TLS.clientConfig(strings.TrimPrefix(origin, "https://"))
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}
	return &ParentLink{
		cfg:    cfg,
		origin: origin,
		dialer: dialer,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// originOf maps a ws/wss URL onto the http/https origin the parent serves.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParentURLInvalid, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		return "http://" + u.Host, nil
	case "wss":
		return "https://" + u.Host, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrParentURLInvalid, raw)
	}
}

// IsTop reports true when the configured parent is this context itself.
func (p *ParentLink) IsTop() bool {
	self := strings.TrimSpace(p.cfg.SelfURL)
	return self != "" && strings.TrimRight(self, "/") == strings.TrimRight(p.cfg.URL, "/")
}

// Location is the parent URL while a connection is open.
func (p *ParentLink) Location() string {
	if p.current() == nil {
		return ""
	}
	return p.cfg.URL
}

func (p *ParentLink) Origin() string {
	return p.origin
}

func (p *ParentLink) Connected() bool {
	return p.current() != nil
}

// Dial connects to the parent, retrying with backoff until MaxConnectAttempts
// is reached (0 retries forever) or ctx is done.
func (p *ParentLink) Dial(ctx context.Context) error {
	var attempt int
	for {
		if p.closed.Load() {
			return ErrParentClosed
		}
		attempt++
		conn, _, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
		if err == nil {
			if p.closed.Load() {
				_ = conn.Close()
				return ErrParentClosed
			}
			conn.SetReadLimit(p.cfg.MaxMessageBytes)
			p.setConn(conn)
			log.Info().Msgf("transport.ParentLink.Dial connected url=%q attempt=%d", p.cfg.URL, attempt)
			return nil
		}
		log.Warn().Msgf("transport.ParentLink.Dial attempt=%d url=%q err=%v", attempt, p.cfg.URL, err)
		if !p.shouldRetry(attempt) {
			return err
		}
		if err := p.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (p *ParentLink) shouldRetry(attempt int) bool {
	if p.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < p.cfg.MaxConnectAttempts
}

func (p *ParentLink) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(p.cfg.Backoff, attempt, p.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PostMessage writes data as one text message. targetOrigin must be the
// wildcard or the parent's origin.
func (p *ParentLink) PostMessage(data []byte, targetOrigin string) error {
	if targetOrigin != WildcardOrigin && targetOrigin != p.origin {
		return fmt.Errorf("%w: target=%q parent=%q", ErrOriginMismatch, targetOrigin, p.origin)
	}
	conn := p.current()
	if conn == nil {
		return ErrParentNotConnected
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop pumps inbound messages into sink until the connection drops or
// ctx is done. A normal close by the parent returns nil.
func (p *ParentLink) ReadLoop(ctx context.Context, sink func([]byte)) error {
	conn := p.current()
	if conn == nil {
		return ErrParentNotConnected
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.clearConnIf(conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msgf("transport.ParentLink.ReadLoop parent closed url=%q", p.cfg.URL)
				return nil
			}
			return err
		}
		sink(data)
	}
}

// Run keeps the link up: dial, pump, and redial after a drop until ctx is done.
func (p *ParentLink) Run(ctx context.Context, sink func([]byte)) error {
	var drops int
	for {
		if err := p.Dial(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrParentClosed) {
				return nil
			}
			return err
		}
		err := p.ReadLoop(ctx, sink)
		if ctx.Err() != nil || p.closed.Load() {
			return nil
		}
		drops++
		log.Warn().Msgf("transport.ParentLink.Run link dropped drops=%d err=%v", drops, err)
		if err := p.sleepBackoff(ctx, drops); err != nil {
			return nil
		}
	}
}

func (p *ParentLink) Close() error {
	p.closed.Store(true)
	p.connMu.Lock()
	conn := p.conn
	p.conn = nil
	p.connMu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (p *ParentLink) current() *websocket.Conn {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.conn
}

func (p *ParentLink) setConn(conn *websocket.Conn) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	p.conn = conn
}

func (p *ParentLink) clearConnIf(target *websocket.Conn) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn == target {
		p.conn = nil
	}
}
