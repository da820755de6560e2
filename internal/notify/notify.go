// Package notify delivers lifecycle notifications without ever blocking or
// rolling back the transition that produced them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/models"
)

// Broadcast addresses every holder of a role.
const Broadcast = "*"

type Notification struct {
	RecipientRole models.Role `json:"recipient_role"`
	RecipientID   string      `json:"recipient_id"`
	Message       string      `json:"message"`
	RequestID     string      `json:"request_id,omitempty"`
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifier is what the lifecycle services depend on: fire-and-forget.
type Notifier interface {
	Enqueue(n Notification)
}

// LogSink writes notifications to the log. Used when no webhook is configured.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(ctx context.Context, n Notification) error {
	s.Logger.Info().
		Str("recipient_role", string(n.RecipientRole)).
		Str("recipient_id", n.RecipientID).
		Str("request_id", n.RequestID).
		Msg(n.Message)
	return nil
}

// WebhookSink POSTs each notification as JSON.
type WebhookSink struct {
	client *http.Client
	url    string
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

func (s *WebhookSink) Notify(ctx context.Context, n Notification) error {
	if strings.TrimSpace(s.url) == "" {
		return errors.New("webhook url missing")
	}
	raw, _ := json.Marshal(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook status %d", resp.StatusCode)
}

// Discard drops everything. Handy in tests.
type Discard struct{}

func (Discard) Enqueue(Notification) {}
