// Package inbox is the shared inbound message channel. Every transport reader
// publishes into one Bus; consumers attach one-shot subscriptions filtered by
// a predicate.
package inbox

import (
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/walletlink/internal/observability"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
)

var ErrClosed = errors.New("inbox: bus closed")

// Predicate decides whether a subscription claims a message. It runs with the
// bus lock held and must not block or call back into the bus.
type Predicate func(envelope.Inbound) bool

// Handler receives the claimed message exactly once.
type Handler func(envelope.Inbound)

type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscription is the cancellation handle for one armed listener.
type Subscription struct {
	id      uint64
	bus     *Bus
	match   Predicate
	onMatch Handler
	done    chan struct{}
}

// Subscribe arms a one-shot listener. The first message that satisfies match
// detaches the subscription and is handed to onMatch.
func (b *Bus) Subscribe(match Predicate, onMatch Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		bus:     b,
		match:   match,
		onMatch: onMatch,
		done:    make(chan struct{}),
	}
	b.subs[sub.id] = sub
	return sub, nil
}

// Cancel detaches the subscription. It reports false when the subscription
// had already been claimed by a message or dropped by Close.
func (s *Subscription) Cancel() bool {
	b := s.bus
	b.mu.Lock()
	_, armed := b.subs[s.id]
	if armed {
		delete(b.subs, s.id)
	}
	b.mu.Unlock()
	if armed {
		close(s.done)
	}
	return armed
}

// Done is closed once the subscription is detached for any reason. When a
// message claimed it, onMatch has returned before Done closes.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Publish classifies raw and delivers it. It returns the number of
// subscriptions that claimed the message.
func (b *Bus) Publish(raw []byte) int {
	return b.Deliver(envelope.ParseInbound(raw))
}

func (b *Bus) Deliver(msg envelope.Inbound) int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	var claimed []*Subscription
	for id, sub := range b.subs {
		if sub.match(msg) {
			claimed = append(claimed, sub)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()

	switch {
	case len(claimed) > 0:
		observability.RecordInbound("claimed")
	case msg.IsReply:
		observability.RecordInbound("unmatched_reply")
	default:
		observability.RecordInbound("ignored")
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].id < claimed[j].id })
	for _, sub := range claimed {
		sub.onMatch(msg)
		close(sub.done)
	}
	return len(claimed)
}

// Len reports the number of armed subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscription without delivering anything.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	dropped := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		dropped = append(dropped, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	for _, sub := range dropped {
		close(sub.done)
	}
}
