package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/models"
	"github.com/RichardoC/studypad/internal/think"
)

const (
	// MaxPriorTurns bounds how many earlier turns are sent with a new prompt.
	MaxPriorTurns = 9

	defaultTimeout  = 60 * time.Second
	defaultItems    = 5
	maxItems        = 20
	maxTitleWords   = 6
	titleTrimChars  = "\"'`“”‘’«»*#"
	titleTrailChars = ".!?:;,"
)

// Service layers the chat, tutoring and generation use cases over a Backend.
type Service struct {
	backend Backend
	logger  *zap.Logger
	timeout time.Duration
}

// New returns a Service. timeout bounds each synchronous completion; zero uses the default.
func New(backend Backend, logger *zap.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, logger: logger, timeout: timeout}
}

func (s *Service) complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.backend.Complete(ctx, msgs, opts)
	if err != nil {
		return "", err
	}
	if c.Usage != nil {
		s.logger.Debug("completion usage",
			zap.Int("prompt_tokens", c.Usage.PromptTokens),
			zap.Int("completion_tokens", c.Usage.CompletionTokens))
	}
	return c.Text, nil
}

// conversation builds system prompt, prior turns (oldest first, capped) and the new prompt.
func conversation(system string, history []models.Turn, prompt string) []Message {
	if len(history) > MaxPriorTurns {
		history = history[len(history)-MaxPriorTurns:]
	}
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, SystemMessage(system))
	msgs = append(msgs, turnsToMessages(history)...)
	return append(msgs, UserMessage(prompt))
}

func systemPromptFor(contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return chatSystemPrompt
	}
	return tutorSystemPrompt(contextText)
}

// Chat answers prompt in open conversation. Only the answer half of the
// completion is returned; any reasoning preamble is dropped.
func (s *Service) Chat(ctx context.Context, history []models.Turn, prompt string) (string, error) {
	text, err := s.complete(ctx, conversation(chatSystemPrompt, history, prompt), Options{Temperature: ChatTemperature})
	if err != nil {
		return "", err
	}
	return think.Answer(text), nil
}

// Tutor answers question using only contextText, redirecting off-topic questions.
func (s *Service) Tutor(ctx context.Context, contextText string, history []models.Turn, question string) (string, error) {
	text, err := s.complete(ctx, conversation(tutorSystemPrompt(contextText), history, question), Options{Temperature: ChatTemperature})
	if err != nil {
		return "", err
	}
	return think.Answer(text), nil
}

// StreamChat opens a streamed completion. A non-empty contextText switches to tutoring mode.
func (s *Service) StreamChat(ctx context.Context, contextText string, history []models.Turn, prompt string) (FragmentSource, error) {
	return s.backend.Stream(ctx, conversation(systemPromptFor(contextText), history, prompt), Options{Temperature: ChatTemperature})
}

// GenerateChatTitle never fails: on any error it returns models.DefaultTitle.
func (s *Service) GenerateChatTitle(ctx context.Context, message string) string {
	return Attempt(ctx, s.logger, "generate_chat_title", models.DefaultTitle, func(ctx context.Context) (string, error) {
		if strings.TrimSpace(message) == "" {
			return "", errors.New("empty message")
		}
		msgs := []Message{SystemMessage(titleSystemPrompt), UserMessage(message)}
		text, err := s.complete(ctx, msgs, Options{Temperature: StructuredTemperature})
		if err != nil {
			return "", err
		}
		title := cleanTitle(think.Answer(text))
		if title == "" {
			return "", errors.New("model returned an empty title")
		}
		return title, nil
	})
}

// GenerateQuizQuestions returns an empty slice when nothing could be generated.
func (s *Service) GenerateQuizQuestions(ctx context.Context, material string, count int) []models.QuizQuestion {
	count = clampItems(count)
	return Attempt(ctx, s.logger, "generate_quiz_questions", []models.QuizQuestion{}, func(ctx context.Context) ([]models.QuizQuestion, error) {
		var questions []models.QuizQuestion
		if err := s.generateStructured(ctx, fmt.Sprintf(quizSystemPromptTemplate, count), material, "questions", &questions); err != nil {
			return nil, err
		}
		out := make([]models.QuizQuestion, 0, len(questions))
		for _, q := range questions {
			if strings.TrimSpace(q.Question) == "" || len(q.Options) == 0 {
				continue
			}
			out = append(out, q)
		}
		return out, nil
	})
}

// GenerateStudyCards returns an empty slice when nothing could be generated.
func (s *Service) GenerateStudyCards(ctx context.Context, material string, count int) []models.StudyCard {
	count = clampItems(count)
	return Attempt(ctx, s.logger, "generate_study_cards", []models.StudyCard{}, func(ctx context.Context) ([]models.StudyCard, error) {
		var cards []models.StudyCard
		if err := s.generateStructured(ctx, fmt.Sprintf(cardsSystemPromptTemplate, count), material, "cards", &cards); err != nil {
			return nil, err
		}
		out := make([]models.StudyCard, 0, len(cards))
		for _, c := range cards {
			if strings.TrimSpace(c.Front) == "" || strings.TrimSpace(c.Back) == "" {
				continue
			}
			out = append(out, c)
		}
		return out, nil
	})
}

func (s *Service) generateStructured(ctx context.Context, system, material, field string, out any) error {
	if strings.TrimSpace(material) == "" {
		return errors.New("no material supplied")
	}
	text, err := s.complete(ctx, []Message{SystemMessage(system), UserMessage(material)}, Options{Temperature: StructuredTemperature})
	if err != nil {
		return err
	}
	return decodeField(think.Answer(text), field, out)
}

func clampItems(n int) int {
	if n <= 0 {
		return defaultItems
	}
	if n > maxItems {
		return maxItems
	}
	return n
}

func cleanTitle(text string) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if i := strings.Index(line, ":"); i >= 0 && strings.EqualFold(strings.TrimSpace(line[:i]), "title") {
		line = line[i+1:]
	}
	line = strings.Trim(strings.TrimSpace(line), titleTrimChars)
	line = strings.TrimRight(strings.TrimSpace(line), titleTrailChars)

	words := strings.Fields(line)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}
