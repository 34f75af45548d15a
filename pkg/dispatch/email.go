package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"seoaudit/internal/errutil"
	metav1 "seoaudit/pkg/meta/v1"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string

	From    string
	To      []string
	Subject string
}

// EmailSender mails a drained alert batch as a plain-text digest. Template
// rendering beyond the digest is out of scope for the engine.
type EmailSender struct {
	cfg SMTPConfig

	// send is swappable for tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg SMTPConfig) (*EmailSender, error) {
	if cfg.Host == "" {
		return nil, &errutil.ConfigurationMissingError{Key: "smtp.host"}
	}
	if cfg.Port == 0 {
		return nil, &errutil.ConfigurationMissingError{Key: "smtp.port"}
	}
	if cfg.From == "" {
		return nil, &errutil.ConfigurationMissingError{Key: "fromEmail"}
	}
	if len(cfg.To) == 0 {
		return nil, &errutil.ConfigurationMissingError{Key: "toEmail"}
	}

	return &EmailSender{
		cfg:  cfg,
		send: smtp.SendMail,
	}, nil
}

func (s *EmailSender) Send(ctx context.Context, alerts []metav1.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var msg strings.Builder

	msg.WriteString("From: " + s.cfg.From + "\r\n")
	msg.WriteString("To: " + strings.Join(s.cfg.To, ", ") + "\r\n")
	msg.WriteString("Subject: " + s.cfg.Subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(FormatAlerts(alerts))
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	return s.send(addr, auth, s.cfg.From, s.cfg.To, []byte(msg.String()))
}
