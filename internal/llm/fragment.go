package llm

import (
	"context"
	"io"
	"sync"
)

// FragmentSource yields the text fragments of one streamed completion in arrival
// order. Next returns io.EOF once the stream has ended normally and any other
// error if it ended abnormally. A source cannot be restarted; Close releases the
// underlying network stream and may be called at any point.
type FragmentSource interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// chanSource adapts callback-style streaming APIs to FragmentSource. The producer
// goroutine sends fragments with send and calls finish exactly once.
type chanSource struct {
	ch     chan string
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

func newChanSource(cancel context.CancelFunc) *chanSource {
	return &chanSource{ch: make(chan string), cancel: cancel}
}

func (s *chanSource) send(ctx context.Context, fragment string) error {
	select {
	case s.ch <- fragment:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSource) finish(err error) {
	if err == nil {
		err = io.EOF
	}
	s.err = err
	close(s.ch)
}

func (s *chanSource) Next(ctx context.Context) (string, error) {
	select {
	case fragment, ok := <-s.ch:
		if !ok {
			return "", s.err
		}
		return fragment, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// staticSource replays fixed fragments. Backends that cannot stream fall back to it.
type staticSource struct {
	fragments []string
	err       error
}

// NewStaticSource returns a source yielding fragments and then err, or io.EOF when err is nil.
func NewStaticSource(fragments []string, err error) FragmentSource {
	if err == nil {
		err = io.EOF
	}
	return &staticSource{fragments: fragments, err: err}
}

func (s *staticSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.fragments) == 0 {
		return "", s.err
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *staticSource) Close() error {
	s.fragments = nil
	return nil
}
