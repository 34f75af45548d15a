package dispatch

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/test"
)

func testAlert(message string) metav1.Alert {
	return metav1.Alert{
		Date:    time.Date(2026, 8, 1, 6, 30, 0, 0, time.UTC),
		Group:   "seo",
		Message: message,
	}
}

func TestFormatAlert(t *testing.T) {
	got := FormatAlert(testAlert("title changed"))

	test.Diff(t, "line", "[2026-08-01T06:30:00Z] title changed", got)
}

func TestFormatAlertWithData(t *testing.T) {
	alert := testAlert("title changed")
	alert.Data = map[string]interface{}{"check": "metatags-has_title_changed"}

	got := FormatAlert(alert)

	if !strings.Contains(got, "metatags-has_title_changed") {
		t.Errorf("line %q does not carry the data", got)
	}
}

func TestFormatAlertsOneLineEach(t *testing.T) {
	got := FormatAlerts([]metav1.Alert{testAlert("a"), testAlert("b")})

	if len(strings.Split(got, "\n")) != 2 {
		t.Errorf("got %q", got)
	}
}

func TestEmailSender(t *testing.T) {
	var (
		sentAddr string
		sentTo   []string
		sentMsg  string
	)

	sender, err := NewEmailSender(SMTPConfig{
		Host:    "mail.example.com",
		Port:    587,
		From:    "alerts@example.com",
		To:      []string{"team@example.com"},
		Subject: "seoaudit alerts",
	})
	if err != nil {
		t.Fatal(err)
	}

	sender.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		sentAddr = addr
		sentTo = to
		sentMsg = string(msg)
		return nil
	}

	if err := sender.Send(context.Background(), []metav1.Alert{testAlert("title changed")}); err != nil {
		t.Fatal(err)
	}

	test.Diff(t, "addr", "mail.example.com:587", sentAddr)
	test.Diff(t, "to", []string{"team@example.com"}, sentTo)

	if !strings.Contains(sentMsg, "Subject: seoaudit alerts") {
		t.Error("subject header missing")
	}
	if !strings.Contains(sentMsg, "title changed") {
		t.Error("alert line missing")
	}
}

func TestEmailSenderEmptyBatch(t *testing.T) {
	sender, err := NewEmailSender(SMTPConfig{
		Host: "mail.example.com",
		Port: 587,
		From: "alerts@example.com",
		To:   []string{"team@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	sender.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		t.Error("empty batch must not send")
		return nil
	}

	if err := sender.Send(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestEmailSenderConfig(t *testing.T) {
	if _, err := NewEmailSender(SMTPConfig{Port: 587, From: "a@b", To: []string{"c@d"}}); err == nil {
		t.Error("missing host must be rejected")
	}
	if _, err := NewEmailSender(SMTPConfig{Host: "h", From: "a@b", To: []string{"c@d"}}); err == nil {
		t.Error("missing port must be rejected")
	}
	if _, err := NewEmailSender(SMTPConfig{Host: "h", Port: 587, To: []string{"c@d"}}); err == nil {
		t.Error("missing sender must be rejected")
	}
	if _, err := NewEmailSender(SMTPConfig{Host: "h", Port: 587, From: "a@b"}); err == nil {
		t.Error("missing recipients must be rejected")
	}
}
