package senders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldline/automation-engine/pkg/config"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
)

// HTTPSMSSender posts rendered SMS messages to the configured provider
// endpoint.
type HTTPSMSSender struct {
	endpoint string
	token    string
	from     string
	client   *http.Client
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewHTTPSMSSender creates a new HTTP SMS sender
func NewHTTPSMSSender(cfg *config.ProviderConfig, m *metrics.Metrics, log *logger.Logger) *HTTPSMSSender {
	return &HTTPSMSSender{
		endpoint: cfg.SMSEndpoint,
		token:    cfg.SMSToken,
		from:     cfg.FromNumber,
		client:   &http.Client{Timeout: 30 * time.Second},
		metrics:  m,
		logger:   log,
	}
}

// SendSMS delivers an SMS via the provider
func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, body string) error {
	payload := map[string]string{
		"from": s.from,
		"to":   to,
		"body": body,
	}

	err := s.post(ctx, payload)
	s.observe("sms", err)
	if err != nil {
		return fmt.Errorf("sms provider: %w", err)
	}

	s.logger.Info("SMS sent", logger.String("to", to))
	return nil
}

func (s *HTTPSMSSender) post(ctx context.Context, payload interface{}) error {
	return postJSON(ctx, s.client, s.endpoint, s.token, payload)
}

func (s *HTTPSMSSender) observe(channel string, err error) {
	observeSend(s.metrics, channel, err)
}

// HTTPEmailSender posts rendered emails to the configured provider endpoint.
type HTTPEmailSender struct {
	endpoint string
	token    string
	from     string
	client   *http.Client
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewHTTPEmailSender creates a new HTTP email sender
func NewHTTPEmailSender(cfg *config.ProviderConfig, m *metrics.Metrics, log *logger.Logger) *HTTPEmailSender {
	return &HTTPEmailSender{
		endpoint: cfg.EmailEndpoint,
		token:    cfg.EmailToken,
		from:     cfg.FromEmail,
		client:   &http.Client{Timeout: 30 * time.Second},
		metrics:  m,
		logger:   log,
	}
}

// SendEmail delivers an email via the provider
func (s *HTTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{
		"from":    s.from,
		"to":      to,
		"subject": subject,
		"body":    body,
	}

	err := postJSON(ctx, s.client, s.endpoint, s.token, payload)
	observeSend(s.metrics, "email", err)
	if err != nil {
		return fmt.Errorf("email provider: %w", err)
	}

	s.logger.Info("Email sent", logger.String("to", to), logger.String("subject", subject))
	return nil
}

// postJSON posts a JSON payload with bearer auth and treats any non-2xx
// response as an error.
func postJSON(ctx context.Context, client *http.Client, endpoint, token string, payload interface{}) error {
	if endpoint == "" {
		return fmt.Errorf("provider endpoint is not configured")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return nil
}

func observeSend(m *metrics.Metrics, channel string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.MessagesSent.WithLabelValues(channel, status).Inc()
}

// LogSMSSender logs instead of sending. Used in development when no
// provider is configured.
type LogSMSSender struct {
	logger *logger.Logger
}

// NewLogSMSSender creates a log-only SMS sender
func NewLogSMSSender(log *logger.Logger) *LogSMSSender {
	return &LogSMSSender{logger: log}
}

// SendSMS logs the message
func (s *LogSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("SMS (log only)", logger.String("to", to), logger.String("body", body))
	return nil
}

// LogEmailSender logs instead of sending.
type LogEmailSender struct {
	logger *logger.Logger
}

// NewLogEmailSender creates a log-only email sender
func NewLogEmailSender(log *logger.Logger) *LogEmailSender {
	return &LogEmailSender{logger: log}
}

// SendEmail logs the message
func (s *LogEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.logger.Info("Email (log only)",
		logger.String("to", to),
		logger.String("subject", subject),
		logger.String("body", body),
	)
	return nil
}
