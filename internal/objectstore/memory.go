package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	bucket string
	now    func() time.Time

	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "local"
	}
	return &MemoryStore{bucket: bucket, now: time.Now, objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read object data: %w", err)
	}
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: buf.Bytes(), contentType: contentType}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(obj.data), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// SignedURL returns mem://bucket/key?expires=<unix seconds>.
func (s *MemoryStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	u := url.URL{
		Scheme:   "mem",
		Host:     s.bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {fmt.Sprint(s.now().Add(ttl).Unix())}}.Encode(),
	}
	return u.String(), nil
}

// ContentType reports the stored content type of key.
func (s *MemoryStore) ContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj.contentType, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
