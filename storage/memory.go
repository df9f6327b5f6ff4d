package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
	scopeToken  string
}

// MemoryUploader — потокобезопасная in-memory реализация FileUploader с той
// же семантикой put-if-absent, что и у R2. Используется в тестах и при
// локальной разработке без бакета.
type MemoryUploader struct {
	mu            sync.Mutex
	objects       map[string]memoryObject
	publicBaseURL string
}

func NewMemoryUploader(publicBaseURL string) *MemoryUploader {
	if publicBaseURL == "" {
		publicBaseURL = "https://evidence.local/"
	}
	if !strings.HasSuffix(publicBaseURL, "/") {
		publicBaseURL += "/"
	}
	return &MemoryUploader{
		objects:       make(map[string]memoryObject),
		publicBaseURL: publicBaseURL,
	}
}

func (u *MemoryUploader) Upload(ctx context.Context, key string, contentType string, scopeToken string, reader io.Reader) (*UploadResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body (key: %s): %w", key, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.objects[key]; ok {
		return nil, ErrDuplicateKey
	}
	u.objects[key] = memoryObject{
		data:        data,
		contentType: contentType,
		scopeToken:  scopeToken,
	}

	return &UploadResult{
		Key:      key,
		Location: u.GetPublicURL(key),
		ETag:     fmt.Sprintf("mem-%d", len(data)),
	}, nil
}

func (u *MemoryUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *MemoryUploader) Exists(ctx context.Context, key string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.objects[key]
	return ok, nil
}

func (u *MemoryUploader) GetPublicURL(key string) string {
	if key == "" {
		return ""
	}
	return u.publicBaseURL + strings.TrimPrefix(key, "/")
}

// ScopeToken возвращает токен, прикреплённый к объекту при загрузке.
func (u *MemoryUploader) ScopeToken(key string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	obj, ok := u.objects[key]
	return obj.scopeToken, ok
}

// Len возвращает количество сохранённых объектов.
func (u *MemoryUploader) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.objects)
}
