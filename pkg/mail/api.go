package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APISettings configures the HTTPS transactional mail sender.
type APISettings struct {
	Enabled bool
	// Endpoint is the full send URL, e.g. https://api.sendgrid.com/v3/mail/send.
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

// DeliveryError reports a non-success response from the upstream mail API.
// Body carries the raw upstream response for diagnostics.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mail api: upstream returned %d: %s", e.StatusCode, e.Body)
}

type apiMailer struct {
	cfg    APISettings
	client *http.Client
}

// NewAPIMailer builds a Mailer that posts messages to a bearer-token
// authenticated transactional mail API.
func NewAPIMailer(cfg APISettings) (Mailer, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, errors.New("mail api: endpoint is required when enabled")
		}
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("mail api: api key is required when enabled")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &apiMailer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type apiAddress struct {
	Email string `json:"email"`
}

type apiPersonalization struct {
	To []apiAddress `json:"to"`
}

type apiContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type apiPayload struct {
	Personalizations []apiPersonalization `json:"personalizations"`
	From             apiAddress           `json:"from"`
	Subject          string               `json:"subject"`
	Content          []apiContent         `json:"content"`
}

func (m *apiMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return errors.New("mail api: delivery disabled")
	}

	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("mail api: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return errors.New("mail api: sender address is required")
	}

	to := make([]apiAddress, 0, len(recipients))
	for _, rcpt := range recipients {
		to = append(to, apiAddress{Email: rcpt})
	}

	// Plaintext first, per the multipart/alternative convention.
	content := []apiContent{{Type: "text/plain", Value: msg.Text}}
	if strings.TrimSpace(msg.HTML) != "" {
		content = append(content, apiContent{Type: "text/html", Value: msg.HTML})
	}

	payload := apiPayload{
		Personalizations: []apiPersonalization{{To: to}},
		From:             apiAddress{Email: from},
		Subject:          msg.Subject,
		Content:          content,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mail api: encode payload: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail api: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}
