// Package llmtest provides a scripted llm.Backend for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/RichardoC/studypad/internal/llm"
)

type Call struct {
	Messages []llm.Message
	Options  llm.Options
	Stream   bool
}

// Backend answers Complete with Text (or Err) and Stream with Fragments
// followed by StreamErr. OpenErr makes Stream fail before any fragment.
type Backend struct {
	Text      string
	Err       error
	Fragments []string
	StreamErr error
	OpenErr   error

	mu    sync.Mutex
	calls []Call
}

func (b *Backend) record(msgs []llm.Message, opts llm.Options, stream bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]llm.Message, len(msgs))
	copy(cp, msgs)
	b.calls = append(b.calls, Call{Messages: cp, Options: opts, Stream: stream})
}

func (b *Backend) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (*llm.Completion, error) {
	b.record(msgs, opts, false)
	if len(msgs) == 0 {
		return nil, llm.ErrNoMessages
	}
	if b.Err != nil {
		return nil, b.Err
	}
	return &llm.Completion{Text: b.Text}, nil
}

func (b *Backend) Stream(ctx context.Context, msgs []llm.Message, opts llm.Options) (llm.FragmentSource, error) {
	b.record(msgs, opts, true)
	if len(msgs) == 0 {
		return nil, llm.ErrNoMessages
	}
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	fragments := make([]string, len(b.Fragments))
	copy(fragments, b.Fragments)
	return llm.NewStaticSource(fragments, b.StreamErr), nil
}

// Calls returns every request the backend received, in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *Backend) LastCall() Call {
	calls := b.Calls()
	if len(calls) == 0 {
		return Call{}
	}
	return calls[len(calls)-1]
}
