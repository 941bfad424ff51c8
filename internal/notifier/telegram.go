package notifier

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	telegramAPIBase = "https://api.telegram.org"
	sendMaxAttempts = 3
	sendBaseDelay   = 2 * time.Second
)

// Telegram sends messages through the Bot API sendMessage endpoint.
type Telegram struct {
	token  string
	chatID string
	base   string
	client *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		base:   telegramAPIBase,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {msg},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("Send | build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("Send | %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Send | telegram returned %s", resp.Status)
	}
	return nil
}

// SendWithRetry retries transient failures with linear backoff. Delivery is
// best effort; trading never blocks on a notification.
func (t *Telegram) SendWithRetry(ctx context.Context, msg string) error {
	var lastErr error
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		lastErr = t.Send(ctx, msg)
		if lastErr == nil {
			return nil
		}
		log.Printf("SendWithRetry | attempt %d/%d failed: %v", attempt, sendMaxAttempts, lastErr)
		if attempt == sendMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * sendBaseDelay):
		}
	}
	return fmt.Errorf("SendWithRetry | giving up after %d attempts: %w", sendMaxAttempts, lastErr)
}
