package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/gomail.v2"

	"github.com/aryan0dhankhar/stratahub/internal/reliability/circuitbreaker"
)

// EmailPayload is everything the email collaborator needs to render and
// send one message.
type EmailPayload struct {
	NotificationID string         `json:"notificationId"`
	TenantID       string         `json:"tenantId"`
	TenantName     string         `json:"tenantName"`
	To             string         `json:"to"`
	ToName         string         `json:"toName,omitempty"`
	Subject        string         `json:"subject"`
	Text           string         `json:"text"`
	Type           string         `json:"type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, p EmailPayload) error
}

// LogSender only logs payloads. It is the default in development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, p EmailPayload) error {
	s.logger.Info("email",
		slog.String("to", p.To),
		slog.String("subject", p.Subject),
		slog.String("tenant_id", p.TenantID),
		slog.String("notification_id", p.NotificationID),
	)
	return nil
}

// HTTPSender posts payloads as JSON to an email API. Consecutive failures
// open a circuit breaker so an unavailable API is not hammered.
type HTTPSender struct {
	client  *resty.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPSender creates a sender for the API at baseURL.
func NewHTTPSender(baseURL, apiKey string, logger *slog.Logger) *HTTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("email api circuit changed", slog.String("from", from.String()), slog.String("to", to.String()))
	})
	return &HTTPSender{client: client, breaker: breaker, logger: logger}
}

func (s *HTTPSender) Send(ctx context.Context, p EmailPayload) error {
	return s.breaker.Call(func() error {
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(p).
			Post("/send")
		if err != nil {
			return fmt.Errorf("email api: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("email api: status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	})
}

// SMTPConfig configures SMTPSender
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends plain text mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	cfg    SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.FromName == "" {
		cfg.FromName = "StrataHub"
	}
	return &SMTPSender{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, p EmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.message(p)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(p EmailPayload) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.From, s.cfg.FromName))
	if p.ToName != "" {
		m.SetHeader("To", m.FormatAddress(p.To, p.ToName))
	} else {
		m.SetHeader("To", p.To)
	}
	m.SetHeader("Subject", p.Subject)
	m.SetBody("text/plain", p.Text)
	return m
}
