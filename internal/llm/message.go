package llm

import "github.com/RichardoC/studypad/internal/models"

const (
	// ChatTemperature is used for open-ended conversation.
	ChatTemperature = 0.7
	// StructuredTemperature is used where output format matters: titles, quizzes, cards.
	StructuredTemperature = 0.3
)

type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: models.RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: models.RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: models.RoleAssistant, Content: content}
}

// Options are per-call generation parameters. Zero MaxTokens leaves the limit to the backend.
type Options struct {
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Completion struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

// turnsToMessages converts stored turns into backend messages, oldest first.
func turnsToMessages(turns []models.Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, Message{Role: t.Role(), Content: t.Content})
	}
	return msgs
}
