package correlator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/walletlink/internal/inbox"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/transport"
	"github.com/stretchr/testify/require"
)

// simHost is a host bridge that decodes each envelope and lets the test
// script what comes back on the bus.
type simHost struct {
	mu      sync.Mutex
	bus     *inbox.Bus
	seen    []envelope.Envelope
	respond func(env envelope.Envelope) [][]byte
	async   bool
}

func (h *simHost) PostMessage(data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.seen = append(h.seen, env)
	respond := h.respond
	h.mu.Unlock()
	if respond == nil {
		return nil
	}
	replies := respond(env)
	if h.async {
		go func() {
			for _, r := range replies {
				h.bus.Publish(r)
			}
		}()
		return nil
	}
	for _, r := range replies {
		h.bus.Publish(r)
	}
	return nil
}

func (h *simHost) envelopes() []envelope.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]envelope.Envelope(nil), h.seen...)
}

func mustReply(t *testing.T, nonce string, response any, isError bool) []byte {
	t.Helper()
	raw, err := envelope.EncodeReply(nonce, response, isError)
	require.NoError(t, err)
	return raw
}

// sequence hands out nonces from a fixed list, then n-<k>.
type sequence struct {
	mu    sync.Mutex
	fixed []string
	next  int
}

func (s *sequence) NextNonce() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fixed) > 0 {
		n := s.fixed[0]
		s.fixed = s.fixed[1:]
		return n, nil
	}
	s.next++
	return fmt.Sprintf("n-%d", s.next), nil
}

// countingClock records how many timers were armed.
type countingClock struct {
	*clock.Mock
	mu     sync.Mutex
	timers int
}

func (c *countingClock) Timer(d time.Duration) *clock.Timer {
	c.mu.Lock()
	c.timers++
	c.mu.Unlock()
	return c.Mock.Timer(d)
}

func (c *countingClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers
}

type harness struct {
	bus   *inbox.Bus
	host  *simHost
	clock *countingClock
	c     *Correlator
}

func newHarness(t *testing.T, env func(h *simHost) transport.Environment, opts ...Option) *harness {
	t.Helper()
	bus := inbox.NewBus()
	t.Cleanup(bus.Close)
	host := &simHost{bus: bus}
	clk := &countingClock{Mock: clock.NewMock()}
	if env == nil {
		env = func(h *simHost) transport.Environment { return transport.Environment{Host: h} }
	}
	base := []Option{WithClock(clk), WithNonceGenerator(&sequence{})}
	c, err := New(Config{Href: "https://dapp.example/page"}, transport.NewSelector(env(host)), bus, append(base, opts...)...)
	require.NoError(t, err)
	return &harness{bus: bus, host: host, clock: clk, c: c}
}

// gatedInbox holds a claimed reply inside the handler until release is
// closed. The bus has already detached the subscription by then, so Cancel
// reports false while the reply is still in flight.
type gatedInbox struct {
	*inbox.Bus
	claimed chan struct{}
	release chan struct{}
}

func newGatedInbox(bus *inbox.Bus) *gatedInbox {
	return &gatedInbox{Bus: bus, claimed: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedInbox) Subscribe(match inbox.Predicate, onMatch inbox.Handler) (*inbox.Subscription, error) {
	return g.Bus.Subscribe(match, func(in envelope.Inbound) {
		close(g.claimed)
		<-g.release
		onMatch(in)
	})
}

func newGatedHarness(t *testing.T) (*harness, *gatedInbox) {
	t.Helper()
	bus := inbox.NewBus()
	t.Cleanup(bus.Close)
	gate := newGatedInbox(bus)
	host := &simHost{bus: bus, async: true}
	clk := &countingClock{Mock: clock.NewMock()}
	c, err := New(
		Config{Href: "https://dapp.example/page"},
		transport.NewSelector(transport.Environment{Host: host}),
		gate,
		WithClock(clk),
		WithNonceGenerator(&sequence{}),
	)
	require.NoError(t, err)
	return &harness{bus: bus, host: host, clock: clk, c: c}, gate
}
