package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fhpereira/acesso/internal/app"
	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/auth/providers"
	testutil "github.com/fhpereira/acesso/internal/database/testutil"
	"github.com/fhpereira/acesso/internal/models"
	"github.com/fhpereira/acesso/pkg/mail"
)

func testConfig() *app.Config {
	return &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: "router-secret", Issuer: "test", TTL: 15 * time.Minute},
			State: app.StateSettings{
				EncryptionKey: "0123456789abcdef0123456789abcdef",
				TTL:           10 * time.Minute,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
}

func newTestRouter(t *testing.T, db *gorm.DB, cfg *app.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		t.Fatalf("jwt service: %v", err)
	}
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		t.Fatalf("session service: %v", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("mailer: %v", err)
	}

	router, err := NewRouter(db, jwtSvc, cfg, sessionSvc, nil, nil, mailer)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return router
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	router := newTestRouter(t, db, testConfig())

	// Health should be public
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 for /health, got %d", w.Code)
	}

	// Protected endpoints without auth should be 401
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/session", nil)
	router.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("expected 401 for /api/auth/session without token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/auth/logout", nil)
	router.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("expected 401 for /api/auth/logout without token, got %d", w.Code)
	}
}

func TestRouter_RegisterLoginSessionFlow(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	router := newTestRouter(t, db, testConfig())

	// Register
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/register",
		strings.NewReader(`{"name":"Ana Souza","email":"ana@example.com","password":"s3cret-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 for register, got %d: %s", w.Code, w.Body.String())
	}
	var registered struct {
		Data struct {
			Redirect string `json:"redirect"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &registered); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if registered.Data.Redirect != "/" {
		t.Fatalf("expected register redirect to /, got %q", registered.Data.Redirect)
	}

	// Duplicate registration conflicts
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/auth/register",
		strings.NewReader(`{"name":"Ana","email":"ANA@example.com","password":"other-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate register, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Email já cadastrado") {
		t.Fatalf("expected duplicate email message, got %s", w.Body.String())
	}

	// Login
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"s3cret-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for login, got %d: %s", w.Code, w.Body.String())
	}

	var login struct {
		Data struct {
			Tokens struct {
				AccessToken  string `json:"access_token"`
				RefreshToken string `json:"refresh_token"`
			} `json:"tokens"`
			Redirect string `json:"redirect"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login.Data.Tokens.AccessToken == "" || login.Data.Tokens.RefreshToken == "" {
		t.Fatalf("expected token pair in login response: %s", w.Body.String())
	}
	if login.Data.Redirect != "/dashboard" {
		t.Fatalf("expected login redirect to /dashboard, got %q", login.Data.Redirect)
	}

	// Session with bearer token
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Tokens.AccessToken)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for session, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ana@example.com") {
		t.Fatalf("expected session payload to carry email, got %s", w.Body.String())
	}

	// Refresh rotates the token
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/auth/refresh",
		strings.NewReader(`{"refresh_token":"`+login.Data.Tokens.RefreshToken+`"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for refresh, got %d: %s", w.Code, w.Body.String())
	}

	// Logout revokes the session
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Tokens.AccessToken)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for logout, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouter_LoginWithMissingCredentials(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	router := newTestRouter(t, db, testConfig())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/login",
		strings.NewReader(`{"email":"","password":""}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing credentials, got %d", w.Code)
	}
}

func TestRouter_MagicLinkRequestWithoutMailer(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	router := newTestRouter(t, db, testConfig())

	// SMTP is disabled in the test mailer; the token is still issued.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/auth/magic-link",
		strings.NewReader(`{"email":"magic@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for magic link request, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	if err := db.Model(&models.LoginToken{}).Where("email = ?", "magic@example.com").Count(&count).Error; err != nil {
		t.Fatalf("count login tokens: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one pending login token, got %d", count)
	}
}

func TestRouter_MagicLinkCallbackCreatesSession(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	router := newTestRouter(t, db, testConfig())

	sum := sha256.Sum256([]byte("known-token"))
	if err := db.Create(&models.LoginToken{
		Email:     "novo@example.com",
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error; err != nil {
		t.Fatalf("seed login token: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/auth/magic-link/callback?token=known-token", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 for magic callback, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", got)
	}

	var user models.User
	if err := db.First(&user, "email = ?", "novo@example.com").Error; err != nil {
		t.Fatalf("expected auto-created user: %v", err)
	}
	if user.Provider != "magic_link" {
		t.Fatalf("expected provider magic_link, got %q", user.Provider)
	}

	// Second use of the same token redirects with an error.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/magic-link/callback?token=known-token", nil)
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Location"); !strings.Contains(got, "error=") {
		t.Fatalf("expected error redirect for reused token, got %q", got)
	}
}

type stubProvider struct {
	identity providers.Identity
}

func (p *stubProvider) Metadata() providers.Metadata {
	return providers.Metadata{Type: "github", DisplayName: "GitHub", ButtonText: "Continue with GitHub", Order: 10}
}

func (p *stubProvider) Begin(ctx context.Context, req providers.BeginAuthRequest) (*providers.BeginAuthResponse, error) {
	return &providers.BeginAuthResponse{
		RedirectURL: "https://idp.example.com/authorize?state=" + url.QueryEscape(req.State),
		State:       req.State,
	}, nil
}

func (p *stubProvider) Callback(ctx context.Context, req providers.CallbackRequest) (*providers.Identity, error) {
	return &p.identity, nil
}

func TestRouter_OAuthFlowWithStubProvider(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	registry := providers.NewRegistry()
	if err := registry.Register(&stubProvider{identity: providers.Identity{
		Provider:      "github",
		Subject:       "42",
		Email:         "octo@example.com",
		EmailVerified: true,
		Name:          "Octo Cat",
		Login:         "octocat",
	}}); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		t.Fatalf("jwt service: %v", err)
	}
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("mailer: %v", err)
	}
	router, err := NewRouter(db, jwtSvc, cfg, sessionSvc, nil, registry, mailer)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	// Begin redirects to the provider with an encrypted state parameter.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/auth/oauth/github/login", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302 for oauth begin, got %d", w.Code)
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatal("expected state parameter in provider redirect")
	}

	// Callback provisions the account and redirects to the dashboard.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/oauth/github/callback?state="+url.QueryEscape(state)+"&code=abc", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 for oauth callback, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", got)
	}

	cookies := w.Result().Cookies()
	var accessCookie, refreshCookie string
	for _, c := range cookies {
		switch c.Name {
		case "access_token":
			accessCookie = c.Value
		case "refresh_token":
			refreshCookie = c.Value
		}
	}
	if accessCookie == "" || refreshCookie == "" {
		t.Fatalf("expected auth cookies after oauth callback, got %v", cookies)
	}

	// The session view nests the provider snapshot inside the user object.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: accessCookie})
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for session, got %d: %s", w.Code, w.Body.String())
	}
	var sessionBody struct {
		Data struct {
			User struct {
				Email           string                `json:"email"`
				ProviderProfile iauth.ProfileSnapshot `json:"provider_profile"`
			} `json:"user"`
			Provider string `json:"provider"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sessionBody); err != nil {
		t.Fatalf("decode session body: %v", err)
	}
	if sessionBody.Data.User.Email != "octo@example.com" {
		t.Fatalf("expected session user octo@example.com, got %q", sessionBody.Data.User.Email)
	}
	if sessionBody.Data.User.ProviderProfile.Github == nil || sessionBody.Data.User.ProviderProfile.Github.Login != "octocat" {
		t.Fatalf("expected github profile inside user, got %+v", sessionBody.Data.User.ProviderProfile)
	}

	var user models.User
	if err := db.First(&user, "email = ?", "octo@example.com").Error; err != nil {
		t.Fatalf("expected provisioned user: %v", err)
	}
	if user.Provider != "github" {
		t.Fatalf("expected provider github, got %q", user.Provider)
	}

	// Tampered state is rejected.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/auth/oauth/github/callback?state=tampered&code=abc", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect for bad state, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); !strings.Contains(got, "error=") {
		t.Fatalf("expected error redirect for bad state, got %q", got)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	router := newTestRouter(t, db, testConfig())

	// Trigger a request to generate metrics
	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health, got %d", rec.Code)
	}

	metricsRec := httptest.NewRecorder()
	metricsReq, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(metricsRec, metricsReq)
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", metricsRec.Code)
	}

	body := metricsRec.Body.String()
	if !strings.Contains(body, `acesso_api_latency_seconds_count{method="GET",path="/health",status="200"}`) {
		t.Fatalf("metrics output missing latency series: %s", body)
	}
}
