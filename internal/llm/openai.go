package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/RichardoC/studypad/internal/models"
)

// OpenAIBackend talks to the Chat Completions API through go-openai.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

func NewOpenAIBackend(baseURL, token, model string) (*OpenAIBackend, error) {
	if model == "" {
		return nil, errors.New("openai backend: model is required")
	}
	cfg := openai.DefaultConfig(token)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (b *OpenAIBackend) request(msgs []Message, opts Options, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

func (b *OpenAIBackend) Complete(ctx context.Context, msgs []Message, opts Options) (*Completion, error) {
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}
	resp, err := b.client.CreateChatCompletion(ctx, b.request(msgs, opts, false))
	if err != nil {
		return nil, newCompletionError("complete", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &CompletionError{Op: "complete", Message: "no completion choices returned"}
	}
	c := &Completion{Text: resp.Choices[0].Message.Content}
	if resp.Usage.TotalTokens > 0 {
		c.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return c, nil
}

func (b *OpenAIBackend) Stream(ctx context.Context, msgs []Message, opts Options) (FragmentSource, error) {
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}
	stream, err := b.client.CreateChatCompletionStream(ctx, b.request(msgs, opts, true))
	if err != nil {
		return nil, newCompletionError("stream", err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return "", io.EOF
	}
	if err != nil {
		return "", newCompletionError("stream", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

func openAIRole(r models.Role) string {
	switch r {
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
