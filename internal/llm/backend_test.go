package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	chunks []string
	text   string
	err    error
	info   map[string]any

	gotMessages []llms.MessageContent
	gotOpts     llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.gotMessages = messages
	m.gotOpts = opts

	if opts.StreamingFunc != nil {
		for _, c := range m.chunks {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.text, GenerationInfo: m.info}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func drain(t *testing.T, src FragmentSource) ([]string, error) {
	t.Helper()
	var got []string
	for {
		f, err := src.Next(context.Background())
		if err != nil {
			return got, err
		}
		got = append(got, f)
	}
}

func TestLangChainComplete(t *testing.T) {
	model := &fakeModel{
		text: "hello",
		info: map[string]any{"PromptTokens": 3, "CompletionTokens": 2, "TotalTokens": 5},
	}
	b := NewLangChainBackend(model)

	c, err := b.Complete(context.Background(), []Message{SystemMessage("sys"), UserMessage("hi"), AssistantMessage("yo")}, Options{Temperature: 0.3, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)
	assert.Equal(t, &Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, c.Usage)

	require.Len(t, model.gotMessages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.gotMessages[2].Role)
	assert.Equal(t, llms.TextContent{Text: "hi"}, model.gotMessages[1].Parts[0])
	assert.Equal(t, 0.3, model.gotOpts.Temperature)
	assert.Equal(t, 64, model.gotOpts.MaxTokens)
}

func TestLangChainCompleteErrors(t *testing.T) {
	b := NewLangChainBackend(&fakeModel{err: errors.New("connection reset by peer")})

	_, err := b.Complete(context.Background(), []Message{UserMessage("hi")}, Options{})
	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "connection reset by peer", ce.Message)

	_, err = b.Complete(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = b.Complete(context.Background(), []Message{{Content: "no role"}}, Options{})
	assert.Error(t, err)
}

func TestLangChainStream(t *testing.T) {
	b := NewLangChainBackend(&fakeModel{chunks: []string{"Thinking", "</think>", " 4"}})

	src, err := b.Stream(context.Background(), []Message{UserMessage("2+2")}, Options{})
	require.NoError(t, err)
	defer src.Close()

	got, err := drain(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"Thinking", "</think>", " 4"}, got)
}

func TestLangChainStreamAbnormalEnd(t *testing.T) {
	b := NewLangChainBackend(&fakeModel{chunks: []string{"partial"}, err: errors.New("stream interrupted")})

	src, err := b.Stream(context.Background(), []Message{UserMessage("q")}, Options{})
	require.NoError(t, err)

	got, err := drain(t, src)
	assert.Equal(t, []string{"partial"}, got)
	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "stream", ce.Op)
}

func TestLangChainStreamCloseReleasesProducer(t *testing.T) {
	chunks := make([]string, 100)
	for i := range chunks {
		chunks[i] = "x"
	}
	b := NewLangChainBackend(&fakeModel{chunks: chunks})

	src, err := b.Stream(context.Background(), []Message{UserMessage("q")}, Options{})
	require.NoError(t, err)

	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", f)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err = drain(t, src)
	assert.ErrorIs(t, err, context.Canceled)
}

func newOpenAIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"model overloaded","type":"server_error"}}`)
			return
		}
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, c := range []string{"Thinking", "</think>", " 4"} {
				fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", req.Model, c)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":%q,
			"choices":[{"index":0,"message":{"role":"assistant","content":"echo: %s"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`, req.Model, req.Messages[len(req.Messages)-1].Content)
	}))
}

func TestOpenAIBackendComplete(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK)
	defer srv.Close()

	b, err := NewOpenAIBackend(srv.URL+"/v1/", "test-token", "llama3.1:8b")
	require.NoError(t, err)

	c, err := b.Complete(context.Background(), []Message{SystemMessage("s"), UserMessage("ping")}, Options{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", c.Text)
	assert.Equal(t, &Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, c.Usage)
}

func TestOpenAIBackendStream(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK)
	defer srv.Close()

	b, err := NewOpenAIBackend(srv.URL+"/v1", "test-token", "llama3.1:8b")
	require.NoError(t, err)

	src, err := b.Stream(context.Background(), []Message{UserMessage("2+2")}, Options{})
	require.NoError(t, err)
	defer src.Close()

	got, err := drain(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "Thinking</think> 4", strings.Join(got, ""))
}

func TestOpenAIBackendError(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusInternalServerError)
	defer srv.Close()

	b, err := NewOpenAIBackend(srv.URL+"/v1", "test-token", "m")
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), []Message{UserMessage("hi")}, Options{})
	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "model overloaded")

	_, err = NewOpenAIBackend("", "t", "")
	assert.Error(t, err)
}

type flakyBackend struct {
	failures int
	calls    int
}

func (b *flakyBackend) Complete(ctx context.Context, msgs []Message, opts Options) (*Completion, error) {
	b.calls++
	if b.calls <= b.failures {
		return nil, &CompletionError{Op: "complete", Message: "temporary"}
	}
	return &Completion{Text: "ok"}, nil
}

func (b *flakyBackend) Stream(ctx context.Context, msgs []Message, opts Options) (FragmentSource, error) {
	b.calls++
	if b.calls <= b.failures {
		return nil, &CompletionError{Op: "stream", Message: "temporary"}
	}
	return NewStaticSource([]string{"ok"}, nil), nil
}

func TestWithRetry(t *testing.T) {
	flaky := &flakyBackend{failures: 2}
	b := WithRetry(flaky, 3, time.Millisecond)

	c, err := b.Complete(context.Background(), []Message{UserMessage("hi")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Text)
	assert.Equal(t, 3, flaky.calls)

	flaky = &flakyBackend{failures: 5}
	b = WithRetry(flaky, 1, time.Millisecond)
	_, err = b.Stream(context.Background(), []Message{UserMessage("hi")}, Options{})
	assert.Error(t, err)
	assert.Equal(t, 2, flaky.calls)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Zero(t, calculateBackoff(time.Second, 0))
	for attempt := 1; attempt <= 40; attempt++ {
		d := calculateBackoff(time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Second+30*time.Second/4)
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource([]string{"a", ""}, nil)
	got, err := drain(t, src)
	assert.Equal(t, []string{"a", ""}, got)
	assert.ErrorIs(t, err, io.EOF)

	boom := errors.New("boom")
	got, err = drain(t, NewStaticSource(nil, boom))
	assert.Empty(t, got)
	assert.ErrorIs(t, err, boom)
}

func TestDecodeField(t *testing.T) {
	var out []string
	require.NoError(t, decodeField("prefix {\"items\":[\"a\",\"b\"]} suffix", "items", &out))
	assert.Equal(t, []string{"a", "b"}, out)

	assert.Error(t, decodeField("no json", "items", &out))
	assert.Error(t, decodeField(`{"other":1}`, "items", &out))
	assert.Error(t, decodeField(`{"items":}`, "items", &out))
}

func TestCompletionErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
	err := newCompletionError("complete", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "llm complete: "+cause.Error(), err.Error())

	again := newCompletionError("stream", err)
	assert.Same(t, err, again)
}
