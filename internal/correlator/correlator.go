package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/walletlink/internal/inbox"
	"github.com/danmuck/walletlink/internal/observability"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/transport"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Sender delivers one serialized envelope. transport.Selector satisfies it.
type Sender interface {
	Send(payload []byte) error
}

// Subscriber arms one-shot inbound listeners. inbox.Bus satisfies it.
type Subscriber interface {
	Subscribe(match inbox.Predicate, onMatch inbox.Handler) (*inbox.Subscription, error)
}

type Option func(*Correlator)

func WithNonceGenerator(g NonceGenerator) Option {
	return func(c *Correlator) {
		if g != nil {
			c.nonces = g
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Correlator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

type Correlator struct {
	cfg     Config
	sender  Sender
	inbox   Subscriber
	nonces  NonceGenerator
	clock   clock.Clock
	pending *PendingCalls
	recent  *lru.Cache[string, string]
}

func New(cfg Config, sender Sender, inbox Subscriber, opts ...Option) (*Correlator, error) {
	if sender == nil {
		return nil, ErrSenderRequired
	}
	if inbox == nil {
		return nil, ErrInboxRequired
	}
	cfg = cfg.WithDefaults()
	recent, err := lru.New[string, string](cfg.RecentNonces)
	if err != nil {
		return nil, err
	}
	c := &Correlator{
		cfg:     cfg,
		sender:  sender,
		inbox:   inbox,
		nonces:  NewRandomNonces(),
		clock:   clock.New(),
		pending: NewPendingCalls(),
		recent:  recent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Correlator) Config() Config {
	return c.cfg
}

// Settled reports the outcome of a recently settled call by nonce. Replies
// that reach nobody can be checked here to tell late answers from strays.
func (c *Correlator) Settled(nonce string) (string, bool) {
	return c.recent.Get(nonce)
}

// Pending returns a snapshot of calls still awaiting settlement.
func (c *Correlator) Pending() []PendingCall {
	return c.pending.List()
}

// Invoke sends method with args and waits for the reply carrying the same
// nonce. A zero timeout waits until ctx is done. The first settlement wins:
// a reply claimed before the timer fires is returned even if the timer has
// also expired.
func (c *Correlator) Invoke(
	ctx context.Context,
	method envelope.Method,
	args envelope.Args,
	timeout time.Duration,
) (json.RawMessage, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", envelope.ErrUnknownMethod, method)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = envelope.Args{}
	}

	started := c.clock.Now()
	nonce, err := c.reserveNonce(method, started)
	if err != nil {
		return nil, err
	}
	defer c.pending.Remove(nonce)

	results := make(chan envelope.Reply, 1)
	sub, err := c.inbox.Subscribe(
		func(in envelope.Inbound) bool {
			return in.IsReply && in.Reply.Nonce == nonce
		},
		func(in envelope.Inbound) {
			results <- in.Reply
		},
	)
	if err != nil {
		return nil, c.finish(method, nonce, started, fmt.Errorf("correlator: subscribe: %w", err))
	}

	payload, err := envelope.Encode(envelope.Envelope{
		Method: method,
		Args:   args,
		Nonce:  nonce,
		Source: c.cfg.Source,
		Href:   c.cfg.Href,
	})
	if err != nil {
		sub.Cancel()
		return nil, c.finish(method, nonce, started, err)
	}
	if err := c.sender.Send(payload); err != nil {
		sub.Cancel()
		return nil, c.finish(method, nonce, started, err)
	}
	log.Debug().Msgf("correlator.Correlator.Invoke sent method=%s nonce=%s timeout=%s", method, nonce, timeout)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := c.clock.Timer(timeout)
		defer timer.Stop()
		expired = timer.C
		c.pending.SetDeadline(nonce, c.clock.Now().Add(timeout))
	}

	select {
	case reply := <-results:
		return c.settle(method, nonce, started, reply)
	case <-sub.Done():
		if reply, ok := claimed(results); ok {
			return c.settle(method, nonce, started, reply)
		}
		return nil, c.finish(method, nonce, started, fmt.Errorf("correlator: %w", inbox.ErrClosed))
	case <-expired:
		if !sub.Cancel() {
			if reply, ok := awaitClaim(sub, results); ok {
				return c.settle(method, nonce, started, reply)
			}
		}
		return nil, c.finish(method, nonce, started, &TimeoutError{Duration: timeout})
	case <-ctx.Done():
		if !sub.Cancel() {
			if reply, ok := awaitClaim(sub, results); ok {
				return c.settle(method, nonce, started, reply)
			}
		}
		return nil, c.finish(method, nonce, started, ctx.Err())
	}
}

func (c *Correlator) reserveNonce(method envelope.Method, queuedAt time.Time) (string, error) {
	for attempt := 1; attempt <= c.cfg.MaxNonceAttempts; attempt++ {
		nonce, err := c.nonces.NextNonce()
		if err != nil {
			return "", err
		}
		if nonce == "" || c.recent.Contains(nonce) {
			log.Warn().Msgf("correlator.Correlator.reserveNonce reused nonce=%q attempt=%d", nonce, attempt)
			continue
		}
		if c.pending.Reserve(PendingCall{Nonce: nonce, Method: method, QueuedAt: queuedAt}) {
			return nonce, nil
		}
		log.Warn().Msgf("correlator.Correlator.reserveNonce collision nonce=%s attempt=%d", nonce, attempt)
	}
	return "", ErrNonceExhausted
}

func (c *Correlator) settle(method envelope.Method, nonce string, started time.Time, reply envelope.Reply) (json.RawMessage, error) {
	if reply.IsError {
		return nil, c.finish(method, nonce, started, &RemoteError{
			Message: reply.Message(),
			Payload: reply.Response,
		})
	}
	return reply.Response, c.finish(method, nonce, started, nil)
}

func (c *Correlator) finish(method envelope.Method, nonce string, started time.Time, err error) error {
	outcome := outcomeOf(err)
	c.recent.Add(nonce, outcome)
	observability.RecordInvocation(string(method), outcome, c.clock.Since(started))
	if err != nil {
		log.Debug().Msgf("correlator.Correlator.Invoke settled method=%s outcome=%s err=%v", method, outcome, err)
	} else {
		log.Debug().Msgf("correlator.Correlator.Invoke settled method=%s outcome=%s", method, outcome)
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRemote):
		return "remote_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, transport.ErrTransportUnavailable):
		return "transport_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, inbox.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

// claimed returns the reply if the handler already delivered one.
func claimed(results <-chan envelope.Reply) (envelope.Reply, bool) {
	select {
	case reply := <-results:
		return reply, true
	default:
		return envelope.Reply{}, false
	}
}

// awaitClaim is used after Cancel lost: the subscription was detached by a
// delivery in progress or by Close. Done closes only after the handler
// returns, so the reply, if any, is buffered by then.
func awaitClaim(sub *inbox.Subscription, results <-chan envelope.Reply) (envelope.Reply, bool) {
	<-sub.Done()
	return claimed(results)
}
