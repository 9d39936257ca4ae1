package security

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// hardening headers every response must carry
var requiredHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Pragma":                    "no-cache",
	"Expires":                   "0",
}

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, body string, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	SetCSRFToken(token string)
	GetCSRFToken() string
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers CSRF, sanitizing and header step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &securitySteps{tc: tc}

	ctx.Step(`^I have a CSRF token$`, steps.haveCSRFToken)
	ctx.Step(`^I use the CSRF token "([^"]*)"$`, steps.useCSRFToken)
	ctx.Step(`^I have no CSRF token$`, steps.haveNoCSRFToken)
	ctx.Step(`^I POST the JSON '([^']*)' to "([^"]*)"$`, steps.postJSON)
	ctx.Step(`^the response should carry the security headers$`, steps.responseCarriesSecurityHeaders)
}

type securitySteps struct {
	tc TestContext
}

func (s *securitySteps) haveCSRFToken(ctx context.Context) error {
	if err := s.tc.GET("/csrf-token", nil); err != nil {
		return err
	}
	token, err := s.tc.GetResponseField("csrf_token")
	if err != nil {
		return err
	}
	str, ok := token.(string)
	if !ok || len(str) < 32 {
		return fmt.Errorf("unexpected csrf token %v", token)
	}
	s.tc.SetCSRFToken(str)
	return nil
}

func (s *securitySteps) useCSRFToken(ctx context.Context, token string) error {
	s.tc.SetCSRFToken(token)
	return nil
}

func (s *securitySteps) haveNoCSRFToken(ctx context.Context) error {
	s.tc.SetCSRFToken("")
	return nil
}

func (s *securitySteps) postJSON(ctx context.Context, body, path string) error {
	headers := map[string]string{}
	if token := s.tc.GetCSRFToken(); token != "" {
		headers["X-CSRF-Token"] = token
	}
	return s.tc.Do(http.MethodPost, path, body, headers)
}

func (s *securitySteps) responseCarriesSecurityHeaders(ctx context.Context) error {
	for name, expected := range requiredHeaders {
		if actual := s.tc.GetLastResponseHeader(name); actual != expected {
			return fmt.Errorf("header %s: expected %q, got %q", name, expected, actual)
		}
	}
	if s.tc.GetLastResponseHeader("Content-Security-Policy") == "" {
		return fmt.Errorf("Content-Security-Policy header is missing")
	}
	return nil
}
