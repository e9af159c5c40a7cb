package correlator

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// DefaultNonceBytes is the amount of randomness behind one nonce.
const DefaultNonceBytes = 10

// NonceGenerator mints correlation tokens.
type NonceGenerator interface {
	NextNonce() (string, error)
}

// NonceFunc adapts a function to NonceGenerator.
type NonceFunc func() (string, error)

func (f NonceFunc) NextNonce() (string, error) {
	return f()
}

// RandomNonces encodes Size random bytes from Reader as standard base64.
type RandomNonces struct {
	Reader io.Reader
	Size   int
}

func NewRandomNonces() RandomNonces {
	return RandomNonces{Reader: rand.Reader, Size: DefaultNonceBytes}
}

func (g RandomNonces) NextNonce() (string, error) {
	size := g.Size
	if size <= 0 {
		size = DefaultNonceBytes
	}
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", fmt.Errorf("correlator: read nonce entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
