package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
	})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}

	if mailer == nil {
		t.Fatal("expected mailer to be returned")
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Text:    "Hello",
	})
	if err != ErrSMTPDisabled {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestFormatMessagePlaintext(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{
		Subject: "Subject\r\nBreak",
		Text:    "Body",
	})
	if !strings.Contains(content, "From: from@example.com") {
		t.Fatalf("expected from header, got %q", content)
	}
	if !strings.Contains(content, "Subject: Subject  Break") {
		t.Fatalf("expected sanitised subject, got %q", content)
	}
	if !strings.HasSuffix(content, "Body") {
		t.Fatalf("expected body suffix, got %q", content)
	}
}

func TestFormatMessageMultipart(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{
		Subject: "Sign in",
		Text:    "plain body",
		HTML:    "<body>html body</body>",
	})
	if !strings.Contains(content, "multipart/alternative") {
		t.Fatalf("expected multipart content type, got %q", content)
	}
	if !strings.Contains(content, "plain body") || !strings.Contains(content, "html body") {
		t.Fatalf("expected both bodies, got %q", content)
	}
	if strings.Index(content, "plain body") > strings.Index(content, "html body") {
		t.Fatal("expected plaintext part before html part")
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	sm, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("expected smtpMailer type")
	}

	if sm.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected timeout to be 10s, got %v", sm.cfg.Timeout)
	}
}

func TestSMTPMailerSendRequiresRecipients(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"   ", "\t"},
		Subject: "No recipients",
		Text:    "Body",
	})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}
}

func TestAPIMailerSendsPayload(t *testing.T) {
	var got apiPayload
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer, err := NewAPIMailer(APISettings{
		Enabled:  true,
		Endpoint: srv.URL,
		APIKey:   "sk-test",
		From:     "login@acesso.app",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"ana@x.com"},
		Subject: "Sign in to acesso.app",
		Text:    "plain",
		HTML:    "<b>html</b>",
	})
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	if auth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth header, got %q", auth)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "ana@x.com" {
		t.Fatalf("unexpected personalizations: %+v", got.Personalizations)
	}
	if got.From.Email != "login@acesso.app" {
		t.Fatalf("unexpected from: %+v", got.From)
	}
	if len(got.Content) != 2 || got.Content[0].Type != "text/plain" || got.Content[1].Type != "text/html" {
		t.Fatalf("unexpected content parts: %+v", got.Content)
	}
}

func TestAPIMailerSurfacesUpstreamBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad api key"}]}`))
	}))
	defer srv.Close()

	mailer, err := NewAPIMailer(APISettings{
		Enabled:  true,
		Endpoint: srv.URL,
		APIKey:   "sk-bad",
		From:     "login@acesso.app",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:   []string{"ana@x.com"},
		Text: "plain",
	})

	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if delivery.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", delivery.StatusCode)
	}
	if !strings.Contains(delivery.Body, "bad api key") {
		t.Fatalf("expected upstream body, got %q", delivery.Body)
	}
}

func TestAPIMailerValidatesConfig(t *testing.T) {
	if _, err := NewAPIMailer(APISettings{Enabled: true}); err == nil {
		t.Fatal("expected endpoint validation error")
	}

	if _, err := NewAPIMailer(APISettings{Enabled: true, Endpoint: "https://api.example.com"}); err == nil {
		t.Fatal("expected api key validation error")
	}
}
