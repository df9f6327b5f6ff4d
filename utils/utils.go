package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"strings"
)

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// NewToken чеканит непрозрачный случайный токен (32 hex-символа). Используется
// и для submission-токенов в ключах blob-хранилища, и для upload-scope
// токенов заявок.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SanitizeFileName обрезает путь и заменяет символы, которым не место в
// ключе объекта. Уникальность ключа обеспечивает не имя файла, а
// submission-токен перед ним.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	sanitized := b.String()
	if sanitized == "" || sanitized == "." || sanitized == ".." {
		sanitized = "upload"
	}
	const maxLen = 128
	if len(sanitized) > maxLen {
		sanitized = sanitized[len(sanitized)-maxLen:]
	}
	return sanitized
}
