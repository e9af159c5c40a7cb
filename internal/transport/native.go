package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/danmuck/walletlink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// NativeHost is the host bridge of a process launched by a native host: the
// page side of the conversation runs over stdio with native-messaging framing.
type NativeHost struct {
	mu     sync.Mutex
	w      io.Writer
	limits frame.Limits
}

func NewNativeHost(w io.Writer, limits frame.Limits) *NativeHost {
	return &NativeHost{w: w, limits: limits}
}

func (h *NativeHost) PostMessage(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return frame.WriteFrame(h.w, data, h.limits)
}

// ReadNative pumps framed messages from r into sink until r ends or ctx is
// done. A blocked read only observes ctx after the next frame arrives, so
// callers close r to stop the pump promptly.
func ReadNative(ctx context.Context, r io.Reader, limits frame.Limits, sink func([]byte)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := frame.ReadFrame(r, limits)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("transport.ReadNative host closed stdin")
				return nil
			}
			if errors.Is(err, frame.ErrEmptyMessage) {
				log.Warn().Msg("transport.ReadNative dropping empty frame")
				continue
			}
			// An oversize payload is still on the stream, so framing is lost.
			return err
		}
		sink(msg)
	}
}
