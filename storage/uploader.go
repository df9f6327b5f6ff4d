package storage

import (
	"context"
	"errors"
	"io"
)

// ErrDuplicateKey сигнализирует, что объект с таким ключом уже существует.
// Хранилище никогда молча не перезаписывает: вызывающая сторона обязана
// чеканить бесколлизионные ключи, поэтому дубликат — жёсткая ошибка.
var ErrDuplicateKey = errors.New("object with this key already exists")

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader — граница blob-хранилища для платёжных скриншотов.
// Upload выполняет put-if-absent; scopeToken прикрепляется к объекту как
// метаданные и связывает blob с авторизовавшей его заявкой независимо от
// соглашения об именовании ключей.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, scopeToken string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	GetPublicURL(key string) string
}
