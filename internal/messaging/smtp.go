package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPOpts holds configuration options for the SMTP email sender.
type SMTPOpts struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// SMTPOption defines a configuration option for the SMTP email sender.
type SMTPOption func(*SMTPOpts)

// WithSMTPHost sets the SMTP server hostname.
func WithSMTPHost(host string) SMTPOption {
	return func(o *SMTPOpts) { o.Host = host }
}

// WithSMTPPort sets the SMTP server port.
func WithSMTPPort(port int) SMTPOption {
	return func(o *SMTPOpts) { o.Port = port }
}

// WithSMTPCredentials sets the SMTP auth credentials.
func WithSMTPCredentials(username, password string) SMTPOption {
	return func(o *SMTPOpts) {
		o.Username = username
		o.Password = password
	}
}

// WithSMTPFrom sets the sender identity on outbound mail.
func WithSMTPFrom(name, email string) SMTPOption {
	return func(o *SMTPOpts) {
		o.FromName = name
		o.FromEmail = email
	}
}

// SMTPSender implements EmailSender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	opts SMTPOpts
}

// Compile-time check that SMTPSender implements EmailSender.
var _ EmailSender = (*SMTPSender)(nil)

// NewSMTPSender creates a new SMTP sender based on provided options.
func NewSMTPSender(opts ...SMTPOption) (*SMTPSender, error) {
	var cfg SMTPOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.Host == "" {
		cfg.Host = os.Getenv("SMTP_HOST")
	}
	if cfg.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
			cfg.Port = p
		}
	}
	if cfg.Username == "" {
		cfg.Username = os.Getenv("SMTP_USERNAME")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("SMTP_PASSWORD")
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = os.Getenv("SMTP_FROM_EMAIL")
	}
	if cfg.FromName == "" {
		cfg.FromName = os.Getenv("SMTP_FROM_NAME")
	}
	slog.Debug("SMTPSender config loaded",
		"Host_set", cfg.Host != "",
		"Username_set", cfg.Username != "",
		"FromEmail_set", cfg.FromEmail != "")

	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host must be provided")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("SMTP from address must be provided")
	}

	return &SMTPSender{opts: cfg}, nil
}

// SendEmail delivers one message over SMTP.
func (s *SMTPSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	m := gomail.NewMsg()
	if err := m.FromFormat(s.opts.FromName, s.opts.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return fmt.Errorf("smtp reply-to: %w", err)
		}
	}

	client, err := gomail.NewClient(s.opts.Host,
		gomail.WithPort(s.opts.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.opts.Username),
		gomail.WithPassword(s.opts.Password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		slog.Error("SMTPSender.SendEmail failed", "to", msg.To, "error", err)
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	slog.Debug("SMTPSender.SendEmail: message sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
