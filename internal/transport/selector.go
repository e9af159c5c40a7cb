package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/walletlink/internal/observability"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// WildcardOrigin targets the parent regardless of its origin. Endpoints are
// not authenticated at this layer.
const WildcardOrigin = "*"

var ErrTransportUnavailable = errors.New("transport: no delivery channel available")

// HostBridge is a bridge object injected by an embedding native host.
type HostBridge interface {
	PostMessage(data []byte) error
}

// ParentFrame is the enclosing context of a nested page.
type ParentFrame interface {
	// IsTop reports whether the current context is its own top level.
	IsTop() bool
	// Location is empty when the parent is not reachable.
	Location() string
	PostMessage(data []byte, targetOrigin string) error
}

// Environment is the execution context the selector probes. Nil fields are
// absent capabilities.
type Environment struct {
	Host   HostBridge
	Parent ParentFrame
}

// Close releases every capability that holds resources.
func (e Environment) Close() error {
	var err error
	if c, ok := e.Host.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if c, ok := e.Parent.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Channel identifies the route chosen for one send.
type Channel string

const (
	ChannelNone        Channel = "none"
	ChannelHostBridge  Channel = "host_bridge"
	ChannelParentFrame Channel = "parent_frame"
)

type Selector struct {
	env Environment
}

func NewSelector(env Environment) *Selector {
	return &Selector{env: env}
}

// Route reports which channel the next Send would use.
func (s *Selector) Route() Channel {
	if s.env.Host != nil {
		return ChannelHostBridge
	}
	if p := s.env.Parent; p != nil && !p.IsTop() && p.Location() != "" {
		return ChannelParentFrame
	}
	return ChannelNone
}

// Send emits payload on exactly one channel: the host bridge when present,
// otherwise the parent frame when nested and reachable.
func (s *Selector) Send(payload []byte) error {
	route := s.Route()
	var err error
	switch route {
	case ChannelHostBridge:
		err = s.env.Host.PostMessage(payload)
	case ChannelParentFrame:
		err = s.env.Parent.PostMessage(payload, WildcardOrigin)
	default:
		log.Debug().Msg("transport.Selector.Send no channel available")
		return ErrTransportUnavailable
	}
	observability.RecordTransportSend(string(route), err == nil)
	if err != nil {
		log.Warn().Msgf("transport.Selector.Send channel=%s err=%v", route, err)
		return fmt.Errorf("%w: %s: %w", ErrTransportUnavailable, route, err)
	}
	return nil
}
