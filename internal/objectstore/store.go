// Package objectstore keeps uploaded file bytes outside the database.
package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"google.golang.org/api/option"
)

var ErrNotFound = errors.New("object not found")

type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// SignedURL returns a URL granting read access to key for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ContentTypeForKey guesses a content type from the key's extension, or "" when unknown.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch path.Ext(s) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return ""
	}
}

// ClientOptions builds Google client options from credentials, which may be a
// path to a key file or the JSON itself. Empty falls back to
// GOOGLE_APPLICATION_CREDENTIALS_JSON, then application default credentials.
func ClientOptions(credentials string) []option.ClientOption {
	creds := strings.TrimSpace(credentials)
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		return append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	return append(opts, option.WithCredentialsFile(creds))
}
