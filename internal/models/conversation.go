package models

import "time"

// DefaultTitle is used until a conversation is renamed or auto-titled.
const DefaultTitle = "New Chat"

// Turn is one message in a conversation, either from the user or from the assistant.
type Turn struct {
	ID            int64     `json:"id"`
	ConvID        int64     `json:"conversation_id"`
	Content       string    `json:"content"`
	FromAssistant bool      `json:"from_assistant"`
	CreatedAt     time.Time `json:"created_at"`
}

func (t Turn) Role() Role {
	if t.FromAssistant {
		return RoleAssistant
	}
	return RoleUser
}

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is an uploaded file. Description holds the text extracted at upload time
// and is what document search matches against.
type Document struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Description string    `json:"description"`
	ConvID      *int64    `json:"conversation_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
