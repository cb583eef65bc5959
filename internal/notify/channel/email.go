package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// Email posts notifications to the mail collaborator:
//
//	POST <endpoint> {"from":..., "recipients":[...], "subject":..., "body":...}
//
// Any 2xx response is success. Failures are retried with linear backoff.
type Email struct {
	endpoint   string
	from       string
	maxRetries int
	backoff    time.Duration
	http       *http.Client
	logger     *zap.Logger
}

type mailRequest struct {
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func NewEmail(cfg config.NotificationConfig, logger *zap.Logger) *Email {
	timeout := cfg.MailTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MailMaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Email{
		endpoint:   cfg.MailEndpoint,
		from:       cfg.EmailFrom,
		maxRetries: retries,
		backoff:    cfg.MailRetryBackoff(),
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Email) Name() string { return NameEmail }

func (c *Email) Send(ctx context.Context, recipient domain.User, n domain.Notification) error {
	if c.endpoint == "" || !recipient.EmailEnabled || recipient.Email == "" {
		return ErrSkipped
	}
	body, err := json.Marshal(mailRequest{
		From:       c.from,
		Recipients: []string{recipient.Email},
		Subject:    n.Title,
		Body:       n.Message,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
		c.logger.Debug("mail attempt failed",
			zap.Int("attempt", attempt),
			zap.String("notification_id", n.ID),
			zap.Error(lastErr))
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (c *Email) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail endpoint status=%d body=%s", resp.StatusCode, string(msg))
	}
	return nil
}
