package llm

import (
	"context"
	"errors"

	"github.com/RichardoC/studypad/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainBackend drives any langchaingo model.
type LangChainBackend struct {
	model llms.Model
}

func NewLangChainBackend(model llms.Model) *LangChainBackend {
	return &LangChainBackend{model: model}
}

// NewLangChainOpenAI connects to an OpenAI-compatible endpoint such as a local Ollama server.
func NewLangChainOpenAI(baseURL, token, model string) (*LangChainBackend, error) {
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLangChainBackend(llm), nil
}

func (b *LangChainBackend) Complete(ctx context.Context, msgs []Message, opts Options) (*Completion, error) {
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}
	resp, err := b.model.GenerateContent(ctx, toMessageContent(msgs), callOptions(opts)...)
	if err != nil {
		return nil, newCompletionError("complete", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &CompletionError{Op: "complete", Message: "no completion choices returned"}
	}
	choice := resp.Choices[0]
	return &Completion{Text: choice.Content, Usage: usageFromInfo(choice.GenerationInfo)}, nil
}

func (b *LangChainBackend) Stream(ctx context.Context, msgs []Message, opts Options) (FragmentSource, error) {
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	src := newChanSource(cancel)
	callOpts := append(callOptions(opts), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		return src.send(ctx, string(chunk))
	}))

	go func() {
		_, err := b.model.GenerateContent(ctx, toMessageContent(msgs), callOpts...)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = newCompletionError("stream", err)
		}
		src.finish(err)
	}()
	return src, nil
}

func toMessageContent(msgs []Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		content = append(content, llms.TextParts(chatMessageType(m), m.Content))
	}
	return content
}

func chatMessageType(m Message) llms.ChatMessageType {
	switch m.Role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func callOptions(opts Options) []llms.CallOption {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}

// usageFromInfo reads the token counts langchaingo's OpenAI client reports in GenerationInfo.
func usageFromInfo(info map[string]any) *Usage {
	if len(info) == 0 {
		return nil
	}
	prompt, okP := intFromInfo(info, "PromptTokens")
	completion, okC := intFromInfo(info, "CompletionTokens")
	total, okT := intFromInfo(info, "TotalTokens")
	if !okP && !okC && !okT {
		return nil
	}
	if !okT {
		total = prompt + completion
	}
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func intFromInfo(info map[string]any, key string) (int, bool) {
	switch v := info[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
