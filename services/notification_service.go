package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// StatusNotification — тело исходящего оповещения регистранту.
type StatusNotification struct {
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	TeamName     string    `json:"team_name"`
	TournamentID uuid.UUID `json:"tournament_id"`
	Status       string    `json:"status,omitempty"`
}

// Notifier — граница исходящих оповещений. Все вызовы fire-and-forget:
// ошибка доставки логируется и никогда не влияет на основную операцию.
type Notifier interface {
	Notify(ctx context.Context, n StatusNotification) error
}

type webhookNotifier struct {
	endpoint string
	client   *http.Client
}

func NewWebhookNotifier(endpoint string) Notifier {
	return &webhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *webhookNotifier) Notify(ctx context.Context, notification StatusNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

type noopNotifier struct{}

// NewNoopNotifier используется, когда webhook не сконфигурирован.
func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(context.Context, StatusNotification) error {
	return nil
}

// notifyAsync отправляет оповещение в фоне, не блокируя вызывающую операцию.
// Контекст намеренно свой: оповещение не должно отменяться вместе с HTTP-
// запросом, который его породил.
func notifyAsync(logger *slog.Logger, notifier Notifier, n StatusNotification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warn("failed to dispatch status notification",
				slog.String("email", n.Email),
				slog.String("team_name", n.TeamName),
				slog.Any("error", err),
			)
		}
	}()
}
