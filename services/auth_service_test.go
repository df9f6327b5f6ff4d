package services

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

func TestLoginOperator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("console-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	svc := NewAuthService(string(hash), "test-secret")

	tokenString, err := svc.LoginOperator("console-key")
	if err != nil {
		t.Fatalf("LoginOperator: %v", err)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims["role"] != "admin" {
		t.Fatalf("role claim = %v, want admin", claims["role"])
	}
	if _, ok := claims["exp"]; !ok {
		t.Fatal("token has no expiry")
	}
}

func TestLoginOperatorWrongKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("console-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	svc := NewAuthService(string(hash), "test-secret")

	if _, err := svc.LoginOperator("guess"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("LoginOperator with wrong key: err = %v, want ErrInvalidCredentials", err)
	}
}
