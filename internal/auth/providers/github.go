package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const defaultGithubAPIBaseURL = "https://api.github.com"

// GithubConfig carries the OAuth application settings for GitHub login.
type GithubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// GithubOptions configures transport behaviour, overridable in tests.
type GithubOptions struct {
	HTTPClient *http.Client
	APIBaseURL string
	Endpoint   oauth2.Endpoint
	Timeout    time.Duration
}

type githubProvider struct {
	oauthConfig *oauth2.Config
	client      *http.Client
	apiBaseURL  string
	timeout     time.Duration
}

// NewGithubProvider builds the GitHub OAuth provider.
func NewGithubProvider(cfg GithubConfig, opts GithubOptions) (Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("github provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("github provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("github provider: redirect url is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	endpoint := opts.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = githuboauth.Endpoint
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	apiBaseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultGithubAPIBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &githubProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		client:     client,
		apiBaseURL: apiBaseURL,
		timeout:    timeout,
	}, nil
}

func (p *githubProvider) Metadata() Metadata {
	return Metadata{
		Type:        "github",
		DisplayName: "GitHub",
		ButtonText:  "Continue with GitHub",
		Order:       10,
	}
}

func (p *githubProvider) Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	if strings.TrimSpace(req.State) == "" {
		return nil, errors.New("github provider: state is required")
	}

	url := p.oauthConfig.AuthCodeURL(req.State)
	return &BeginAuthResponse{RedirectURL: url, State: req.State}, nil
}

func (p *githubProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	if req.RawHTTPRequest == nil {
		return nil, errors.New("github provider: request is required")
	}
	query := req.RawHTTPRequest.URL.Query()
	if errStr := query.Get("error"); errStr != "" {
		return nil, fmt.Errorf("github provider: authorization error: %s", errStr)
	}
	code := query.Get("code")
	if code == "" {
		return nil, errors.New("github provider: authorization code missing")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github provider: exchange failed: %w", err)
	}

	var account struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
	}
	if err := p.fetchJSON(ctx, token.AccessToken, "/user", &account); err != nil {
		return nil, err
	}

	email, verified, err := p.resolveEmail(ctx, token.AccessToken, account.Email)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(account.Name)
	if name == "" {
		name = account.Login
	}

	return &Identity{
		Provider:      "github",
		Subject:       fmt.Sprintf("%d", account.ID),
		Email:         email,
		EmailVerified: verified,
		Name:          name,
		Login:         account.Login,
		AvatarURL:     account.AvatarURL,
		ProfileURL:    account.HTMLURL,
	}, nil
}

// resolveEmail prefers the primary verified address from /user/emails, since
// the public email on /user may be absent or unverified.
func (p *githubProvider) resolveEmail(ctx context.Context, accessToken, fallback string) (string, bool, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.fetchJSON(ctx, accessToken, "/user/emails", &emails); err != nil {
		return "", false, err
	}

	for _, entry := range emails {
		if entry.Primary && entry.Verified {
			return strings.ToLower(entry.Email), true, nil
		}
	}
	for _, entry := range emails {
		if entry.Verified {
			return strings.ToLower(entry.Email), true, nil
		}
	}

	fallback = strings.ToLower(strings.TrimSpace(fallback))
	if fallback != "" {
		return fallback, false, nil
	}

	return "", false, errors.New("github provider: no verified email on account")
}

func (p *githubProvider) fetchJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("github provider: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("github provider: fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github provider: fetch %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github provider: decode %s: %w", path, err)
	}
	return nil
}
