package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Sender pushes in-app notifications to the platform's messaging hub.
type Sender interface {
	Send(ctx context.Context, recipientID, subject, body string) error
	ProviderID() string
}

type HTTPSender struct {
	url   string
	token string
	http  *http.Client
}

func NewHTTPSender(url string, token string) *HTTPSender {
	return &HTTPSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *HTTPSender) ProviderID() string {
	return "webhook"
}

func (s *HTTPSender) Send(ctx context.Context, recipientID, subject, body string) error {
	if s.url == "" {
		return errors.New("notification webhook url not configured")
	}
	payload := map[string]string{
		"recipient_id": recipientID,
		"subject":      subject,
		"body":         body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("notification webhook returned non-2xx")
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "noop"
}

func (s *NoopSender) Send(_ context.Context, _, _, _ string) error {
	return nil
}
