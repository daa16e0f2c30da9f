package present

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/llm"
	"github.com/RichardoC/studypad/internal/think"
)

// Sink receives every frame the driver produces, in order.
type Sink interface {
	Render(Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame) error

func (f SinkFunc) Render(frame Frame) error {
	return f(frame)
}

// Result is the terminal state of one driven completion. Answer follows the
// finalization rule: without a delimiter it is the trimmed raw text.
type Result struct {
	Raw       string
	Reasoning string
	Answer    string
	Closed    bool
	Fragments int
	Err       error
	Frame     Frame
}

type Driver struct {
	sink       Sink
	logger     *zap.Logger
	onComplete func(Result)
}

// NewDriver returns a driver rendering to sink. onComplete may be nil; when set
// it is called exactly once per Run, after the stream ends or fails.
func NewDriver(sink Sink, logger *zap.Logger, onComplete func(Result)) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{sink: sink, logger: logger, onComplete: onComplete}
}

// Run consumes src until it ends, fails or ctx is done, rendering a frame per
// fragment and a final complete frame. It always closes src.
func (d *Driver) Run(ctx context.Context, src llm.FragmentSource) Result {
	splitter := think.New()
	fragments := 0
	var streamErr error

	for {
		fragment, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}
		fragments++
		snap := splitter.Push(fragment)
		d.render(Compose(snap.Reasoning, snap.Answer, snap.Phase == think.PhaseReasoning, false))
	}
	if err := src.Close(); err != nil {
		d.logger.Debug("failed to close fragment source", zap.Error(err))
	}

	res := finalize(splitter)
	res.Fragments = fragments
	res.Err = streamErr
	if streamErr != nil {
		d.logger.Warn("stream ended abnormally",
			zap.Error(streamErr),
			zap.Int("fragments", fragments),
			zap.Int("answer_len", len(res.Answer)))
	}
	d.render(res.Frame)

	if d.onComplete != nil {
		d.onComplete(res)
	}
	return res
}

func (d *Driver) render(f Frame) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Render(f); err != nil {
		d.logger.Debug("failed to render frame", zap.Error(err), zap.Stringer("regime", f.Regime))
	}
}

func finalize(s *think.Splitter) Result {
	snap := s.Snapshot()
	res := Result{Raw: snap.Raw, Closed: s.Closed(), Answer: s.Final()}
	if res.Closed {
		res.Reasoning = snap.Reasoning
		res.Frame = Compose(snap.Reasoning, res.Answer, false, true)
		return res
	}
	// A finished response without a delimiter has no reasoning to show.
	res.Frame = Compose("", res.Answer, true, true)
	return res
}
