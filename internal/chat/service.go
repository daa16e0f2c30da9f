// Package chat persists both sides of each exchange around a completion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/db"
	"github.com/RichardoC/studypad/internal/llm"
	"github.com/RichardoC/studypad/internal/models"
	"github.com/RichardoC/studypad/internal/present"
)

// ApologyMessage is stored as the assistant turn when no answer could be produced.
const ApologyMessage = "Lo siento, hubo un error al procesar tu mensaje. Por favor, inténtalo de nuevo."

// historyWindow is how many recent turns are read back, including the new user turn.
const historyWindow = 10

var (
	ErrEmptyMessage = errors.New("message content is empty")
	ErrTurnNotFound = errors.New("turn not found in conversation")
)

// Store is the persistence the chat service needs; *db.Database satisfies it.
type Store interface {
	GetConversation(id int64) (*models.Conversation, error)
	UpdateConversationTitle(id int64, title string) error
	SaveTurn(turn *models.Turn) error
	RecentTurns(conversationID int64, limit int) ([]models.Turn, error)
	CountTurns(conversationID int64, fromAssistant bool) (int, error)
	DeleteTurnsFrom(conversationID, turnID int64) (int64, error)
}

type Service struct {
	store  Store
	llm    *llm.Service
	logger *zap.Logger
}

func New(store Store, llmService *llm.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, llm: llmService, logger: logger}
}

// SendRequest is one user message. A non-empty Context switches to tutoring.
type SendRequest struct {
	ConversationID int64
	Content        string
	Context        string
}

// Exchange is the pair of turns persisted for one message.
type Exchange struct {
	UserTurn      *models.Turn `json:"user_turn"`
	AssistantTurn *models.Turn `json:"assistant_turn"`
	// Failed is set when the assistant turn holds ApologyMessage.
	Failed bool   `json:"failed"`
	Title  string `json:"title,omitempty"`
}

// Send persists the user turn, asks for an answer and persists it. A failed
// completion is stored as ApologyMessage rather than returned as an error.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Exchange, error) {
	userTurn, history, err := s.begin(req)
	if err != nil {
		return nil, err
	}
	ex := &Exchange{UserTurn: userTurn}

	var answer string
	if strings.TrimSpace(req.Context) != "" {
		answer, err = s.llm.Tutor(ctx, req.Context, history, req.Content)
	} else {
		answer, err = s.llm.Chat(ctx, history, req.Content)
	}
	if err != nil {
		s.logger.Error("completion failed",
			zap.Error(err),
			zap.Int64("conversation_id", req.ConversationID))
	}
	return s.finish(ctx, req, ex, answer, err)
}

// SendStream is Send with the completion streamed through a present.Driver
// rendering to sink. The stored answer is the driver's finalized answer.
func (s *Service) SendStream(ctx context.Context, req SendRequest, sink present.Sink) (*Exchange, error) {
	userTurn, history, err := s.begin(req)
	if err != nil {
		return nil, err
	}
	ex := &Exchange{UserTurn: userTurn}

	src, err := s.llm.StreamChat(ctx, req.Context, history, req.Content)
	if err != nil {
		s.logger.Error("failed to open completion stream",
			zap.Error(err),
			zap.Int64("conversation_id", req.ConversationID))
		if sink != nil {
			_ = sink.Render(present.Compose("", "", true, true))
		}
		return s.finish(ctx, req, ex, "", err)
	}

	res := present.NewDriver(sink, s.logger, nil).Run(ctx, src)
	return s.finish(ctx, req, ex, res.Answer, res.Err)
}

func (s *Service) begin(req SendRequest) (*models.Turn, []models.Turn, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, nil, ErrEmptyMessage
	}
	if _, err := s.store.GetConversation(req.ConversationID); err != nil {
		return nil, nil, err
	}

	userTurn := &models.Turn{ConvID: req.ConversationID, Content: req.Content}
	if err := s.store.SaveTurn(userTurn); err != nil {
		return nil, nil, fmt.Errorf("failed to save user turn: %w", err)
	}

	recent, err := s.store.RecentTurns(req.ConversationID, historyWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]models.Turn, 0, len(recent))
	for _, t := range recent {
		if t.ID != userTurn.ID {
			history = append(history, t)
		}
	}
	return userTurn, history, nil
}

func (s *Service) finish(ctx context.Context, req SendRequest, ex *Exchange, answer string, completionErr error) (*Exchange, error) {
	if strings.TrimSpace(answer) == "" {
		answer = ApologyMessage
		ex.Failed = true
		if completionErr == nil {
			s.logger.Warn("completion produced no answer", zap.Int64("conversation_id", req.ConversationID))
		}
	}

	assistantTurn := &models.Turn{ConvID: req.ConversationID, Content: answer, FromAssistant: true}
	if err := s.store.SaveTurn(assistantTurn); err != nil {
		return nil, fmt.Errorf("failed to save assistant turn: %w", err)
	}
	ex.AssistantTurn = assistantTurn
	ex.Title = s.autoTitle(ctx, req)
	return ex, nil
}

// autoTitle renames a conversation still carrying the default title after its
// first user turn. It returns the new title, or "" when nothing changed.
func (s *Service) autoTitle(ctx context.Context, req SendRequest) string {
	conv, err := s.store.GetConversation(req.ConversationID)
	if err != nil || conv.Title != models.DefaultTitle {
		return ""
	}
	n, err := s.store.CountTurns(req.ConversationID, false)
	if err != nil || n != 1 {
		return ""
	}

	title := s.llm.GenerateChatTitle(ctx, req.Content)
	if title == models.DefaultTitle {
		return ""
	}
	if err := s.store.UpdateConversationTitle(req.ConversationID, title); err != nil {
		s.logger.Warn("failed to set conversation title", zap.Error(err), zap.Int64("conversation_id", req.ConversationID))
		return ""
	}
	return title
}

// DeleteTurn removes the turn and every later turn of the conversation.
func (s *Service) DeleteTurn(ctx context.Context, conversationID, turnID int64) (int64, error) {
	n, err := s.store.DeleteTurnsFrom(conversationID, turnID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, ErrTurnNotFound
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted turns",
		zap.Int64("conversation_id", conversationID),
		zap.Int64("from_turn_id", turnID),
		zap.Int64("count", n))
	return n, nil
}

// History returns up to limit recent turns, oldest first; limit <= 0 returns all.
func (s *Service) History(ctx context.Context, conversationID int64, limit int) ([]models.Turn, error) {
	if _, err := s.store.GetConversation(conversationID); err != nil {
		return nil, err
	}
	return s.store.RecentTurns(conversationID, limit)
}
