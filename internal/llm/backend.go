package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Backend is a text-generation provider. Complete returns a single result,
// Stream returns the completion as a fragment sequence.
type Backend interface {
	Complete(ctx context.Context, msgs []Message, opts Options) (*Completion, error)
	Stream(ctx context.Context, msgs []Message, opts Options) (FragmentSource, error)
}

const (
	ProviderLangChain = "langchain"
	ProviderOpenAI    = "openai"
)

type BackendConfig struct {
	Provider   string
	BaseURL    string
	Token      string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// NewBackend builds the configured provider, wrapped with retries when MaxRetries > 0.
func NewBackend(cfg BackendConfig) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderLangChain:
		backend, err = NewLangChainOpenAI(cfg.BaseURL, cfg.Token, cfg.Model)
	case ProviderOpenAI:
		backend, err = NewOpenAIBackend(cfg.BaseURL, cfg.Token, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries > 0 {
		backend = WithRetry(backend, cfg.MaxRetries, cfg.RetryDelay)
	}
	return backend, nil
}

func validateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return ErrNoMessages
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("llm: message %d has invalid role %d", i, int(m.Role))
		}
	}
	return nil
}

type retryBackend struct {
	next       Backend
	maxRetries int
	retryDelay time.Duration
}

// WithRetry retries failed calls with exponential backoff. Only opening a stream
// is retried; a stream that fails midway is not restarted.
func WithRetry(next Backend, maxRetries int, retryDelay time.Duration) Backend {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &retryBackend{next: next, maxRetries: maxRetries, retryDelay: retryDelay}
}

func (b *retryBackend) Complete(ctx context.Context, msgs []Message, opts Options) (*Completion, error) {
	var c *Completion
	err := b.retry(ctx, func() error {
		var err error
		c, err = b.next.Complete(ctx, msgs, opts)
		return err
	})
	return c, err
}

func (b *retryBackend) Stream(ctx context.Context, msgs []Message, opts Options) (FragmentSource, error) {
	var src FragmentSource
	err := b.retry(ctx, func() error {
		var err error
		src, err = b.next.Stream(ctx, msgs, opts)
		return err
	})
	return src, err
}

func (b *retryBackend) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(calculateBackoff(b.retryDelay, attempt)):
			case <-ctx.Done():
				return lastErr
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrNoMessages) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// calculateBackoff doubles baseDelay per attempt, caps at 30s and adds up to ±25% jitter.
func calculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}
