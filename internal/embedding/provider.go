// Package embedding provides the pluggable text-embedding backend. The
// backend is an optional capability: it may be configured off entirely,
// or fail to come up, and every caller is expected to handle
// ErrUnavailable by falling back to text search.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// ErrUnavailable means no embedding backend is usable right now. It is
// recovered locally by callers and never surfaced as a hard failure.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// Client computes fixed-dimension embeddings for text.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Config carries backend construction parameters.
type Config struct {
	Provider  string
	Dim       int
	APIKey    string
	OllamaURL string
	Model     string
}

// NewClient builds an embedding client for the configured provider. The
// "none" provider yields a client whose Embed always reports
// ErrUnavailable, keeping the absent-capability branch explicit.
func NewClient(cfg Config) (Client, error) {
	if cfg.Dim <= 0 {
		cfg.Dim = 384
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
		return newOpenAIClient(cfg.APIKey, cfg.Model, cfg.Dim), nil

	case ProviderOllama:
		return newOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Dim), nil

	case ProviderMock:
		return NewMockClient(cfg.Dim), nil

	case ProviderNone, "":
		return absentClient{dim: cfg.Dim}, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid options: openai, ollama, mock, none)", cfg.Provider)
	}
}

type absentClient struct {
	dim int
}

func (absentClient) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

func (c absentClient) Dim() int { return c.dim }

// Lazy defers backend construction to first use and coalesces concurrent
// first-use calls into a single initialization via singleflight. A failed
// initialization pins the client to the unavailable state rather than
// retrying on every embed.
type Lazy struct {
	dim   int
	build func() (Client, error)

	group  singleflight.Group
	client Client
	err    error
	done   bool
}

// NewLazy wraps a backend constructor.
func NewLazy(dim int, build func() (Client, error)) *Lazy {
	if dim <= 0 {
		dim = 384
	}
	return &Lazy{dim: dim, build: build}
}

func (l *Lazy) Dim() int { return l.dim }

func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	_, err, _ := l.group.Do("init", func() (any, error) {
		if l.done {
			return nil, l.err
		}
		l.client, l.err = l.build()
		l.done = true
		return nil, l.err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	vec, err := l.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != l.dim {
		return nil, fmt.Errorf("%w: backend returned dimension %d, want %d", ErrUnavailable, len(vec), l.dim)
	}
	return vec, nil
}
