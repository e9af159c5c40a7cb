// Package consent gates wallet operations behind an explicit user approval.
package consent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrUserRejected = errors.New("consent: user rejected the request")

// Request is what the user is asked to approve.
type Request struct {
	Title  string
	Button string
}

// Provider resolves once the user approves req, or fails with
// ErrUserRejected.
type Provider interface {
	WhenApprove(ctx context.Context, req Request) error
}

type ProviderFunc func(ctx context.Context, req Request) error

func (f ProviderFunc) WhenApprove(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// AutoApprove approves everything. Used for unattended hosts and tests.
type AutoApprove struct{}

func (AutoApprove) WhenApprove(ctx context.Context, _ Request) error {
	return ctx.Err()
}

// Deny rejects everything.
type Deny struct{}

func (Deny) WhenApprove(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrUserRejected, req.Title)
}

// Prompt asks on a terminal. Only "y" or "yes" approves; anything else,
// including end of input, rejects.
type Prompt struct {
	mu    sync.Mutex
	in    io.Reader
	out   io.Writer
	once  sync.Once
	lines chan string
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out, lines: make(chan string)}
}

// readLines owns the input for the life of the prompt. A line typed while
// no request is open is held until the next request.
func (p *Prompt) readLines() {
	defer close(p.lines)
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
}

func (p *Prompt) WhenApprove(ctx context.Context, req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.once.Do(func() { go p.readLines() })

	button := req.Button
	if button == "" {
		button = "approve"
	}
	if _, err := fmt.Fprintf(p.out, "%s\n  %s? [y/N] ", req.Title, button); err != nil {
		return fmt.Errorf("consent: write prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case line, ok := <-p.lines:
		if ok {
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				log.Info().Msgf("consent.Prompt.WhenApprove approved title=%q", req.Title)
				return nil
			}
		}
		log.Info().Msgf("consent.Prompt.WhenApprove rejected title=%q", req.Title)
		return fmt.Errorf("%w: %s", ErrUserRejected, req.Title)
	}
}

// Approved runs fn only after p approves req.
func Approved[T any](ctx context.Context, p Provider, req Request, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.WhenApprove(ctx, req); err != nil {
		return zero, err
	}
	return fn(ctx)
}
