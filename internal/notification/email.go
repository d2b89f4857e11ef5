package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// AddressResolver maps an account id to its email address.
type AddressResolver func(ctx context.Context, accountID string) (string, error)

// EmailNotifier delivers notifications over SMTP. Broadcast notifications
// (no account id) are skipped; email is for account-directed messages only.
type EmailNotifier struct {
	config  SMTPConfig
	resolve AddressResolver
	logger  zerolog.Logger
}

// NewEmailNotifier creates an email notifier
func NewEmailNotifier(cfg SMTPConfig, resolve AddressResolver, logger zerolog.Logger) *EmailNotifier {
	if cfg.FromName == "" {
		cfg.FromName = "Custody Platform"
	}
	return &EmailNotifier{
		config:  cfg,
		resolve: resolve,
		logger:  logger.With().Str("component", "email").Logger(),
	}
}

func (e *EmailNotifier) Name() string {
	return "email"
}

func (e *EmailNotifier) IsEnabled() bool {
	return e.config.Enabled && e.config.Host != "" && e.config.From != ""
}

// Send delivers the notification to the account's email address
func (e *EmailNotifier) Send(notification *Notification) error {
	if notification.AccountID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	to, err := e.resolve(ctx, notification.AccountID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}

	body := notification.Message
	if !notification.Amount.IsZero() {
		body = fmt.Sprintf("%s\r\n\r\nAmount: %s", notification.Message, notification.Amount.StringFixed(2))
	}

	return e.send(to, notification.Title, body)
}

func (e *EmailNotifier) send(to, subject, body string) error {
	from := e.config.From
	if e.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", e.config.FromName, e.config.From)
	}

	message := []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := e.config.Host + ":" + e.config.Port

	var err error
	// Port 465 is implicit TLS; 587 and 25 go through smtp.SendMail which
	// upgrades with STARTTLS when the server offers it.
	if e.config.Port == "465" {
		err = e.sendTLS(addr, auth, e.config.From, []string{to}, message)
	} else {
		err = smtp.SendMail(addr, auth, e.config.From, []string{to}, message)
	}

	if err != nil {
		return fmt.Errorf("SMTP error: %w", err)
	}

	e.logger.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// sendTLS sends email over an implicit TLS connection (port 465)
func (e *EmailNotifier) sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := strings.Split(addr, ":")[0]
	tlsConfig := &tls.Config{
		ServerName: host,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close message body: %w", err)
	}

	return client.Quit()
}
