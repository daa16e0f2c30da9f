package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/chat"
	"github.com/RichardoC/studypad/internal/db"
	"github.com/RichardoC/studypad/internal/documents"
	"github.com/RichardoC/studypad/internal/llm"
	"github.com/RichardoC/studypad/internal/models"
)

// messageHistoryLimit is how many turns GET /api/messages returns.
const messageHistoryLimit = 50

type Handler struct {
	db        *db.Database
	chat      *chat.Service
	llm       *llm.Service
	documents *documents.Service
	logger    *zap.Logger

	maxUploadBytes int64
}

func NewHandler(database *db.Database, chatService *chat.Service, llmService *llm.Service, docs *documents.Service, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &Handler{
		db:             database,
		chat:           chatService,
		llm:            llmService,
		documents:      docs,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/conversations", h.GetConversations)
	mux.HandleFunc("/api/conversations/update", h.UpdateConversation)
	mux.HandleFunc("/api/conversations/delete", h.DeleteConversation)
	mux.HandleFunc("/api/messages", h.GetMessages)
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/message/stream", h.HandleMessageStream)
	mux.HandleFunc("/api/messages/delete", h.DeleteMessage)
	mux.HandleFunc("/api/title", h.GenerateTitle)
	mux.HandleFunc("/api/quiz", h.GenerateQuiz)
	mux.HandleFunc("/api/cards", h.GenerateCards)
	mux.HandleFunc("/api/documents", h.UploadDocument)
	mux.HandleFunc("/api/documents/search", h.SearchDocuments)
	mux.HandleFunc("/api/documents/download", h.DownloadDocument)
	mux.HandleFunc("/api/documents/delete", h.DeleteDocument)
	mux.HandleFunc("/healthz", h.Health)
}

type MessageRequest struct {
	Content string `json:"content"`
	// Context is study material to tutor from; DocumentID uses a document's extracted text instead.
	Context    string `json:"context,omitempty"`
	DocumentID *int64 `json:"document_id,omitempty"`
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

type TitleRequest struct {
	Message string `json:"message"`
}

type TitleResponse struct {
	Title string `json:"title"`
}

type StudyRequest struct {
	Material   string `json:"material"`
	DocumentID *int64 `json:"document_id,omitempty"`
	Count      int    `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	req, ok := h.sendRequest(w, r)
	if !ok {
		return
	}

	ex, err := h.chat.Send(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to send message", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ex)
}

func (h *Handler) HandleMessageStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	req, ok := h.sendRequest(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, chat.ErrEmptyMessage.Error())
		return
	}
	// Errors after the stream has started can only be reported as events.
	if _, err := h.db.GetConversation(req.ConversationID); err != nil {
		h.fail(w, r, "Failed to load conversation", err)
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ex, err := h.chat.SendStream(r.Context(), req, sink)
	if err != nil {
		h.logger.Error("Failed to stream message", zap.Error(err), zap.Int64("conversation_id", req.ConversationID))
		_ = sink.event("error", ErrorResponse{Error: err.Error()})
		return
	}
	_ = sink.event("done", ex)
}

// sendRequest decodes a message body and resolves its tutoring context.
func (h *Handler) sendRequest(w http.ResponseWriter, r *http.Request) (chat.SendRequest, bool) {
	convID, ok := h.int64Param(w, r, "conversation_id")
	if !ok {
		return chat.SendRequest{}, false
	}
	var body MessageRequest
	if !h.decode(w, r, &body) {
		return chat.SendRequest{}, false
	}

	req := chat.SendRequest{ConversationID: convID, Content: body.Content, Context: body.Context}
	if body.DocumentID != nil {
		doc, err := h.documents.Get(r.Context(), *body.DocumentID)
		if err != nil {
			h.fail(w, r, "Failed to load document", err)
			return chat.SendRequest{}, false
		}
		req.Context = doc.Description
	}
	return req, true
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		conversations, err := h.db.GetConversations()
		if err != nil {
			h.fail(w, r, "Failed to get conversations", err)
			return
		}

		h.logger.Debug("Retrieved conversations",
			zap.Int("count", len(conversations)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))

		w.Header().Set("Access-Control-Allow-Origin", "*")
		h.writeJSON(w, http.StatusOK, conversations)

	case http.MethodPost:
		var req CreateConversationRequest
		if !h.decode(w, r, &req) {
			return
		}
		conversation, err := h.db.CreateConversation(req.Title)
		if err != nil {
			h.fail(w, r, "Failed to create conversation", err)
			return
		}
		h.writeJSON(w, http.StatusCreated, conversation)

	default:
		allowMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	convID, ok := h.int64Param(w, r, "conversation_id")
	if !ok {
		return
	}

	turns, err := h.chat.History(r.Context(), convID, messageHistoryLimit)
	if err != nil {
		h.fail(w, r, "Failed to get messages", err)
		return
	}
	h.writeJSON(w, http.StatusOK, turns)
}

// DeleteMessage deletes a turn and everything after it in the conversation.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	convID, ok := h.int64Param(w, r, "conversation_id")
	if !ok {
		return
	}
	turnID, ok := h.int64Param(w, r, "turn_id")
	if !ok {
		return
	}

	n, err := h.chat.DeleteTurn(r.Context(), convID, turnID)
	if err != nil {
		h.fail(w, r, "Failed to delete messages", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	convID, ok := h.int64Param(w, r, "conversation_id")
	if !ok {
		return
	}

	if err := h.db.DeleteConversation(convID); err != nil {
		h.fail(w, r, "Failed to delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	convID, ok := h.int64Param(w, r, "conversation_id")
	if !ok {
		return
	}
	var req UpdateConversationRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.db.UpdateConversationTitle(convID, req.Title); err != nil {
		h.fail(w, r, "Failed to update conversation", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GenerateTitle(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req TitleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, TitleResponse{Title: h.llm.GenerateChatTitle(r.Context(), req.Message)})
}

func (h *Handler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	material, count, ok := h.studyRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]models.QuizQuestion{
		"questions": h.llm.GenerateQuizQuestions(r.Context(), material, count),
	})
}

func (h *Handler) GenerateCards(w http.ResponseWriter, r *http.Request) {
	material, count, ok := h.studyRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]models.StudyCard{
		"cards": h.llm.GenerateStudyCards(r.Context(), material, count),
	})
}

func (h *Handler) studyRequest(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	if !allowMethod(w, r, http.MethodPost) {
		return "", 0, false
	}
	var req StudyRequest
	if !h.decode(w, r, &req) {
		return "", 0, false
	}
	material := req.Material
	if req.DocumentID != nil {
		doc, err := h.documents.Get(r.Context(), *req.DocumentID)
		if err != nil {
			h.fail(w, r, "Failed to load document", err)
			return "", 0, false
		}
		material = doc.Description
	}
	if strings.TrimSpace(material) == "" {
		writeError(w, http.StatusBadRequest, "material is required")
		return "", 0, false
	}
	return material, req.Count, true
}

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, documents.ErrMissingFile.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	req := documents.UploadRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	if v := r.FormValue("conversation_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid conversation ID")
			return
		}
		req.ConversationID = &id
	}

	doc, err := h.documents.Upload(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to upload document", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	results, err := h.documents.Search(r.Context(), query)
	if err != nil {
		h.fail(w, r, "Failed to search documents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	url, err := h.documents.Download(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to sign download", err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete document", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func (h *Handler) int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", strings.ReplaceAll(name, "_", " ")))
		return 0, false
	}
	return v, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// fail maps service errors to a status and logs the unexpected ones.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, chat.ErrTurnNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, db.ErrEmptyTitle),
		errors.Is(err, documents.ErrMissingFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
