package correlator

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/walletlink/internal/observability"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
)

// PendingCall tracks one invocation awaiting its reply.
type PendingCall struct {
	Nonce      string
	Method     envelope.Method
	QueuedAt   time.Time
	DeadlineAt time.Time
}

// PendingCalls stores in-flight calls by nonce.
type PendingCalls struct {
	mu    sync.RWMutex
	items map[string]PendingCall
}

func NewPendingCalls() *PendingCalls {
	return &PendingCalls{
		items: make(map[string]PendingCall),
	}
}

// Reserve records call unless its nonce is already in flight.
func (p *PendingCalls) Reserve(call PendingCall) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.items[call.Nonce]; taken {
		return false
	}
	p.items[call.Nonce] = call
	observability.SetPendingCalls(len(p.items))
	return true
}

func (p *PendingCalls) SetDeadline(nonce string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[nonce]
	if !ok {
		return
	}
	item.DeadlineAt = at
	p.items[nonce] = item
}

func (p *PendingCalls) Remove(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, nonce)
	observability.SetPendingCalls(len(p.items))
}

func (p *PendingCalls) Get(nonce string) (PendingCall, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item, ok := p.items[nonce]
	return item, ok
}

func (p *PendingCalls) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// List returns a snapshot ordered by queue time.
func (p *PendingCalls) List() []PendingCall {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PendingCall, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].Nonce < out[j].Nonce
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}
