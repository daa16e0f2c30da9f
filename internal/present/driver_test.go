package present

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/llm"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name           string
		reasoning      string
		answer         string
		reasoningPhase bool
		complete       bool
		want           Frame
	}{
		{
			name:           "reasoning in progress",
			reasoning:      "hmm",
			reasoningPhase: true,
			want:           Frame{Regime: RegimeReasoning, ShowIndicator: true, Reasoning: "hmm", ShowReasoning: true},
		},
		{
			name:           "nothing yet",
			reasoningPhase: true,
			want:           Frame{Regime: RegimeReasoning, ShowIndicator: true},
		},
		{
			name:      "answer streaming",
			reasoning: "hmm</think>",
			answer:    "The answer",
			want:      Frame{Regime: RegimeAnswer, Reasoning: "hmm</think>", ShowReasoning: true, Answer: "The answer", ShowCaret: true},
		},
		{
			name:     "answer complete",
			answer:   "The answer is 4",
			complete: true,
			want:     Frame{Regime: RegimeAnswer, Answer: "The answer is 4", Complete: true},
		},
		{
			name:           "complete with nothing generated",
			reasoningPhase: true,
			complete:       true,
			want:           Frame{Regime: RegimeEmpty, Notice: EmptyNotice, Complete: true},
		},
		{
			name:           "complete while reasoning but answer available",
			answer:         "fallback",
			reasoningPhase: true,
			complete:       true,
			want:           Frame{Regime: RegimeAnswer, Answer: "fallback", Complete: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.reasoning, tt.answer, tt.reasoningPhase, tt.complete))
		})
	}
}

type recordingSink struct {
	frames []Frame
	err    error
}

func (s *recordingSink) Render(f Frame) error {
	s.frames = append(s.frames, f)
	return s.err
}

func runDriver(t *testing.T, src llm.FragmentSource) (Result, *recordingSink, int) {
	t.Helper()
	sink := &recordingSink{}
	calls := 0
	d := NewDriver(sink, zap.NewNop(), func(Result) { calls++ })
	return d.Run(context.Background(), src), sink, calls
}

func TestDriverReasoningThenAnswer(t *testing.T) {
	res, sink, calls := runDriver(t, llm.NewStaticSource([]string{"Thinking", " about", " it</think> The answer is 4"}, nil))

	assert.Equal(t, 1, calls)
	assert.NoError(t, res.Err)
	assert.True(t, res.Closed)
	assert.Equal(t, 3, res.Fragments)
	assert.Equal(t, "Thinking about it</think>", res.Reasoning)
	assert.Equal(t, "The answer is 4", res.Answer)

	require.Len(t, sink.frames, 4)
	assert.Equal(t, RegimeReasoning, sink.frames[0].Regime)
	assert.Equal(t, "Thinking", sink.frames[0].Reasoning)
	assert.Equal(t, RegimeReasoning, sink.frames[1].Regime)
	assert.Equal(t, RegimeAnswer, sink.frames[2].Regime)
	assert.True(t, sink.frames[2].ShowCaret)

	last := sink.frames[3]
	assert.True(t, last.Complete)
	assert.False(t, last.ShowCaret)
	assert.Equal(t, "The answer is 4", last.Answer)
}

func TestDriverWithoutDelimiter(t *testing.T) {
	res, sink, _ := runDriver(t, llm.NewStaticSource([]string{"No delimiter here"}, nil))

	require.Len(t, sink.frames, 2)
	live := sink.frames[0]
	assert.Equal(t, RegimeReasoning, live.Regime)
	assert.Equal(t, "No delimiter here", live.Reasoning)
	assert.Empty(t, live.Answer)

	final := sink.frames[1]
	assert.Equal(t, RegimeAnswer, final.Regime)
	assert.Equal(t, "No delimiter here", final.Answer)
	assert.Empty(t, final.Reasoning)

	assert.False(t, res.Closed)
	assert.Equal(t, "No delimiter here", res.Answer)
	assert.Empty(t, res.Reasoning)
}

func TestDriverEmptyStream(t *testing.T) {
	res, sink, calls := runDriver(t, llm.NewStaticSource([]string{"", "  "}, nil))

	assert.Equal(t, 1, calls)
	assert.Empty(t, res.Answer)
	final := sink.frames[len(sink.frames)-1]
	assert.Equal(t, RegimeEmpty, final.Regime)
	assert.Equal(t, EmptyNotice, final.Notice)
}

func TestDriverAbnormalTermination(t *testing.T) {
	boom := &llm.CompletionError{Op: "stream", Message: "connection reset"}
	res, sink, calls := runDriver(t, llm.NewStaticSource([]string{"reasoning</think> partial ans"}, boom))

	assert.Equal(t, 1, calls, "completion callback must fire on failure")
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "partial ans", res.Answer)
	assert.True(t, sink.frames[len(sink.frames)-1].Complete)
}

func TestDriverSinkErrorsDoNotStopStream(t *testing.T) {
	sink := &recordingSink{err: errors.New("client gone")}
	d := NewDriver(sink, zap.NewNop(), nil)

	res := d.Run(context.Background(), llm.NewStaticSource([]string{"a</think>", "b"}, nil))
	assert.Equal(t, "b", res.Answer)
	assert.Len(t, sink.frames, 3)
}

type closeTrackingSource struct {
	llm.FragmentSource
	closed int
}

func (s *closeTrackingSource) Close() error {
	s.closed++
	return s.FragmentSource.Close()
}

func TestDriverCancellationClosesSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &closeTrackingSource{FragmentSource: llm.NewStaticSource([]string{"never"}, nil)}
	calls := 0
	res := NewDriver(nil, nil, func(Result) { calls++ }).Run(ctx, src)

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, calls)
	assert.Empty(t, res.Answer)
}

func TestSinkFunc(t *testing.T) {
	var got []Regime
	sink := SinkFunc(func(f Frame) error {
		got = append(got, f.Regime)
		return nil
	})
	NewDriver(sink, nil, nil).Run(context.Background(), llm.NewStaticSource([]string{"x</think>y"}, io.EOF))
	assert.Equal(t, []Regime{RegimeAnswer, RegimeAnswer}, got)
}

func TestTerminalRendererFinal(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf, TerminalOptions{ShowReasoning: true})
	d := NewDriver(r, nil, nil)

	d.Run(context.Background(), llm.NewStaticSource([]string{"step one</think>", " The answer is 4"}, nil))
	out := buf.String()
	assert.Contains(t, out, "Reasoning")
	assert.Contains(t, out, "step one</think>")
	assert.Contains(t, out, "The answer is 4")
	assert.Equal(t, 1, strings.Count(out, "The answer is 4"), "only the final frame is printed")
}

func TestTerminalRendererLive(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf, TerminalOptions{Live: true, ShowReasoning: true})
	d := NewDriver(r, nil, nil)

	d.Run(context.Background(), llm.NewStaticSource([]string{"Thin", "king</think> The ", "answer is 4"}, nil))
	out := buf.String()
	assert.Contains(t, out, indicatorText)
	assert.Contains(t, out, "The answer is 4")
	assert.Equal(t, 1, strings.Count(out, "answer is 4"))
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminalRendererEmptyNotice(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf, TerminalOptions{Live: true})
	NewDriver(r, nil, nil).Run(context.Background(), llm.NewStaticSource(nil, nil))
	assert.Contains(t, buf.String(), EmptyNotice)
}

func TestTerminalRendererMarkdown(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf, TerminalOptions{Markdown: true, WordWrap: 120})
	require.NoError(t, r.Render(Compose("", "The answer is 4", false, true)))
	assert.Contains(t, buf.String(), "The answer is 4")
}
