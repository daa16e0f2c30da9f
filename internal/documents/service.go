// Package documents runs the upload pipeline: store the bytes, extract text,
// record the metadata so the document can be searched.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/models"
	"github.com/RichardoC/studypad/internal/objectstore"
	"github.com/RichardoC/studypad/internal/ocr"
)

const (
	defaultURLTTL     = 15 * time.Minute
	defaultOCRTimeout = 90 * time.Second
	searchLimit       = 20
	maxFilenameLen    = 120
)

var ErrMissingFile = errors.New("no file uploaded")

type Store interface {
	SaveDocument(doc *models.Document) error
	GetDocument(id int64) (*models.Document, error)
	SearchDocuments(query string, limit int) ([]models.Document, error)
	DeleteDocument(id int64) error
}

type Config struct {
	// URLTTL is how long signed download URLs stay valid.
	URLTTL     time.Duration
	OCRTimeout time.Duration
	OCRPrompt  string
}

type Service struct {
	store   Store
	objects objectstore.Store
	ocr     ocr.Extractor
	cfg     Config
	logger  *zap.Logger
}

// New returns a Service. extractor may be nil, in which case uploads get no description.
func New(store Store, objects objectstore.Store, extractor ocr.Extractor, cfg Config, logger *zap.Logger) *Service {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = defaultURLTTL
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = defaultOCRTimeout
	}
	if cfg.OCRPrompt == "" {
		cfg.OCRPrompt = ocr.DefaultPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, objects: objects, ocr: extractor, cfg: cfg, logger: logger}
}

type UploadRequest struct {
	Filename       string
	ContentType    string
	Data           []byte
	ConversationID *int64
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if len(req.Data) == 0 || strings.TrimSpace(req.Filename) == "" {
		return nil, ErrMissingFile
	}

	filename := SanitizeFilename(req.Filename)
	key := fmt.Sprintf("uploads/%s/%s", uuid.NewString(), filename)
	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if ct := objectstore.ContentTypeForKey(filename); ct != "" {
			contentType = ct
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.objects.Put(ctx, key, contentType, bytes.NewReader(req.Data)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc := &models.Document{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(req.Data)),
		Description: s.describe(ctx, key, contentType),
		ConvID:      req.ConversationID,
	}
	if err := s.store.SaveDocument(doc); err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.Error(delErr), zap.String("key", key))
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	s.logger.Info("document uploaded",
		zap.Int64("document_id", doc.ID),
		zap.String("key", key),
		zap.Int64("size", doc.Size),
		zap.Int("description_len", len(doc.Description)))
	return doc, nil
}

// describe extracts text from images. Failures are logged and leave the
// description empty.
func (s *Service) describe(ctx context.Context, key, contentType string) string {
	if s.ocr == nil || !strings.HasPrefix(contentType, "image/") {
		return ""
	}
	url, err := s.objects.SignedURL(ctx, key, s.cfg.URLTTL)
	if err != nil {
		s.logger.Warn("failed to sign upload for OCR", zap.Error(err), zap.String("key", key))
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OCRTimeout)
	defer cancel()
	text, err := s.ocr.Extract(ctx, url, s.cfg.OCRPrompt)
	if err != nil {
		s.logger.Warn("OCR failed", zap.Error(err), zap.String("key", key))
		return ""
	}
	return strings.TrimSpace(text)
}

func (s *Service) Search(ctx context.Context, query string) ([]models.Document, error) {
	return s.store.SearchDocuments(query, searchLimit)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Document, error) {
	return s.store.GetDocument(id)
}

// Download returns a signed URL for the document's bytes.
func (s *Service) Download(ctx context.Context, id int64) (string, error) {
	doc, err := s.store.GetDocument(id)
	if err != nil {
		return "", err
	}
	return s.objects.SignedURL(ctx, doc.Key, s.cfg.URLTTL)
}

// Delete removes the stored bytes, then the metadata. A missing object does
// not prevent the metadata from being removed.
func (s *Service) Delete(ctx context.Context, id int64) error {
	doc, err := s.store.GetDocument(id)
	if err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, doc.Key); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return s.store.DeleteDocument(id)
}

// SanitizeFilename keeps the base name and replaces anything outside
// letters, digits, dot, dash and underscore.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "file"
	}
	if r := []rune(out); len(r) > maxFilenameLen {
		out = string(r[:maxFilenameLen])
	}
	return out
}
