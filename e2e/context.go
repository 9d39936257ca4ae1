package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"thgate/internal/app"
	"thgate/internal/audit"
	jwttoken "thgate/internal/jwt_token"
	"thgate/internal/platform/config"
)

// TestContext holds state between test steps. Each scenario gets its own
// in-process gateway with a clock the steps can move.
type TestContext struct {
	server  *httptest.Server
	gateway *app.App
	events  *audit.MemorySink
	client  *http.Client

	mu  sync.Mutex
	now time.Time

	ClientIP         string
	CSRFToken        string
	Cookies          map[string]string
	LastResponse     *http.Response
	LastResponseBody []byte
}

var scenarioStart = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	return &TestContext{
		now:     scenarioStart,
		Cookies: map[string]string{},
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Reset stops any running gateway and clears scenario state.
func (tc *TestContext) Reset() {
	tc.Stop()
	tc.mu.Lock()
	tc.now = scenarioStart
	tc.mu.Unlock()
	tc.ClientIP = ""
	tc.CSRFToken = ""
	tc.Cookies = map[string]string{}
	tc.LastResponse = nil
	tc.LastResponseBody = nil
}

// Start builds the gateway for environment and serves it on a loopback port.
func (tc *TestContext) Start(environment string) error {
	tc.Stop()
	tc.events = audit.NewMemorySink()

	cfg := &config.Config{
		Environment:     environment,
		LogLevel:        "error",
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
		JWT: config.JWT{
			AccessSecret:  "e2e-access-secret-0123456789abcdef",
			RefreshSecret: "e2e-refresh-secret-0123456789abcdef",
			Issuer:        jwttoken.DefaultIssuer,
			Audience:      jwttoken.DefaultAudience,
			AccessTTL:     jwttoken.DefaultAccessTTL,
			RefreshTTL:    jwttoken.DefaultRefreshTTL,
		},
		Firebase: config.Firebase{
			APIKey:            "e2e-api-key",
			AuthDomain:        "e2e.firebaseapp.com",
			ProjectID:         "e2e-project",
			StorageBucket:     "e2e.appspot.com",
			MessagingSenderID: "1234567890",
			AppID:             "1:1234567890:web:e2e",
		},
		RateLimit: config.RateLimit{
			RequestsPerWindow: 60,
			Window:            time.Minute,
			LoginMaxAttempts:  5,
			LoginLockout:      15 * time.Minute,
			CleanupInterval:   time.Minute,
		},
		AllowedOrigins: []string{"https://app.themehackers.com"},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway, err := app.New(context.Background(), cfg, logger,
		app.WithClock(tc.Now),
		app.WithPasswordCost(bcrypt.MinCost),
		app.WithAuditSink(tc.events),
	)
	if err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	tc.gateway = gateway
	tc.server = httptest.NewServer(gateway.Handler)
	return nil
}

func (tc *TestContext) Stop() {
	if tc.server != nil {
		tc.server.Close()
		tc.server = nil
	}
	if tc.gateway != nil {
		tc.gateway.Close()
		tc.gateway = nil
	}
}

func (tc *TestContext) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now
}

func (tc *TestContext) Advance(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.now = tc.now.Add(d)
}

func (tc *TestContext) SetClientIP(ip string) {
	tc.ClientIP = ip
}

func (tc *TestContext) SetCSRFToken(token string) {
	tc.CSRFToken = token
}

func (tc *TestContext) GetCSRFToken() string {
	return tc.CSRFToken
}

// Do sends a request with the scenario's client IP and cookies and stores
// the response. A non-empty body is sent as JSON.
func (tc *TestContext) Do(method, path, body string, headers map[string]string) error {
	if tc.server == nil {
		return fmt.Errorf("gateway is not running")
	}
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.server.URL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.ClientIP)
	}
	for name, value := range tc.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(tc.Cookies, c.Name)
			continue
		}
		tc.Cookies[c.Name] = c.Value
	}
	return nil
}

// POST sends body as JSON. The CSRF token, when one is held, travels in
// the header.
func (tc *TestContext) POST(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	headers := map[string]string{}
	if tc.CSRFToken != "" {
		headers["X-CSRF-Token"] = tc.CSRFToken
	}
	return tc.Do(http.MethodPost, path, string(data), headers)
}

// POSTRaw sends body verbatim without a CSRF header.
func (tc *TestContext) POSTRaw(path, body string) error {
	return tc.Do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.Do(http.MethodGet, path, "", headers)
}

// GetResponseField extracts a field from the JSON response. Dotted paths
// descend into objects.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for _, part := range strings.Split(field, ".") {
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
		if data, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
	}
	return data, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}
	_, err := tc.GetResponseField(text)
	return err == nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.LastResponse == nil {
		return ""
	}
	return tc.LastResponse.Header.Get(name)
}

func (tc *TestContext) GetCookie(name string) (string, bool) {
	v, ok := tc.Cookies[name]
	return v, ok
}

// SetCookie stores a cookie for later requests; an empty value drops it.
func (tc *TestContext) SetCookie(name, value string) {
	if value == "" {
		delete(tc.Cookies, name)
		return
	}
	tc.Cookies[name] = value
}

// CountEvents waits briefly for the async audit publisher and returns how
// many events of type were written.
func (tc *TestContext) CountEvents(eventType string) int {
	deadline := time.Now().Add(time.Second)
	for {
		n := len(tc.events.OfType(audit.EventType(eventType)))
		if n > 0 || time.Now().After(deadline) {
			return n
		}
		time.Sleep(10 * time.Millisecond)
	}
}
