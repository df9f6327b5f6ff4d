package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryUploaderPutIfAbsent(t *testing.T) {
	u := NewMemoryUploader("")
	ctx := context.Background()

	result, err := u.Upload(ctx, "t1/abc_receipt.png", "image/png", "scope-1", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.Key != "t1/abc_receipt.png" {
		t.Fatalf("result key = %q", result.Key)
	}

	// Повторная запись в занятый ключ отклоняется, не перезаписывается.
	_, err = u.Upload(ctx, "t1/abc_receipt.png", "image/png", "scope-2", strings.NewReader("other"))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("second Upload: err = %v, want ErrDuplicateKey", err)
	}
	if token, _ := u.ScopeToken("t1/abc_receipt.png"); token != "scope-1" {
		t.Fatalf("scope token = %q, original object was overwritten", token)
	}
}

func TestMemoryUploaderDeleteAndExists(t *testing.T) {
	u := NewMemoryUploader("")
	ctx := context.Background()

	if _, err := u.Upload(ctx, "k", "image/png", "s", strings.NewReader("x")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if exists, _ := u.Exists(ctx, "k"); !exists {
		t.Fatal("object missing after upload")
	}

	if err := u.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if exists, _ := u.Exists(ctx, "k"); exists {
		t.Fatal("object still present after delete")
	}
	// Удаление отсутствующего ключа — no-op.
	if err := u.Delete(ctx, "k"); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
}

func TestMemoryUploaderPublicURL(t *testing.T) {
	u := NewMemoryUploader("https://cdn.example.com/evidence")

	if got := u.GetPublicURL("t1/abc_receipt.png"); got != "https://cdn.example.com/evidence/t1/abc_receipt.png" {
		t.Fatalf("GetPublicURL = %q", got)
	}
	if got := u.GetPublicURL(""); got != "" {
		t.Fatalf("GetPublicURL of empty key = %q, want empty", got)
	}
}
