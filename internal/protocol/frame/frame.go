// Package frame implements native-messaging framing: a 4-byte little-endian
// length prefix followed by one JSON message.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	PrefixLen = 4

	// DefaultMaxMessageBytes matches the browser's host-to-extension cap.
	DefaultMaxMessageBytes uint32 = 1024 * 1024
)

var (
	ErrShortPrefix     = errors.New("frame: short length prefix")
	ErrEmptyMessage    = errors.New("frame: empty message")
	ErrMessageTooLarge = errors.New("frame: message too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxMessageBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxMessageBytes: DefaultMaxMessageBytes}
}

// ReadFrame reads one message. A clean end of stream before any prefix byte
// returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}

	length := binary.LittleEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, ErrEmptyMessage
	}
	if limits.MaxMessageBytes > 0 && length > limits.MaxMessageBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, length, limits.MaxMessageBytes)
	}

	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("frame: read payload: %w", err)
	}
	return msg, nil
}

// WriteFrame writes payload with its prefix in a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) == 0 {
		return ErrEmptyMessage
	}
	if limits.MaxMessageBytes > 0 && uint64(len(payload)) > uint64(limits.MaxMessageBytes) {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(payload), limits.MaxMessageBytes)
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.LittleEndian.PutUint32(buf[:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}
