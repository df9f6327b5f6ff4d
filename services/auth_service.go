package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const operatorTokenTTL = 12 * time.Hour

// AuthService выдаёт операторские JWT по ключу доступа консоли. Управление
// пользователями и сессиями — внешняя система; здесь только вход в
// модераторскую консоль.
type AuthService struct {
	adminKeyHash string
	jwtSecret    []byte
}

func NewAuthService(adminKeyHash, jwtSecret string) *AuthService {
	return &AuthService{
		adminKeyHash: adminKeyHash,
		jwtSecret:    []byte(jwtSecret),
	}
}

func (s *AuthService) LoginOperator(accessKey string) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminKeyHash), []byte(accessKey)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(operatorTokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign operator token: %w", err)
	}
	return token, nil
}
