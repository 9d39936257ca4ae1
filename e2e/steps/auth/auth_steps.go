package auth

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

const (
	demoEmail    = "demo@themehackers.com"
	demoPassword = "ThemeHackers2024!"

	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	Do(method, path, body string, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetCookie(name string) (string, bool)
	SetCookie(name, value string)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers session authentication step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I log in as the demo user$`, steps.logInAsDemo)
	ctx.Step(`^I log in as the demo user at "([^"]*)"$`, steps.logInAsDemoAt)
	ctx.Step(`^I log in with email "([^"]*)" and password "([^"]*)"$`, steps.logInWith)
	ctx.Step(`^I refresh my session$`, steps.refresh)
	ctx.Step(`^I refresh with token "([^"]*)"$`, steps.refreshWithToken)
	ctx.Step(`^I check my session$`, steps.checkSession)
	ctx.Step(`^I check my session with a bearer token$`, steps.checkSessionWithBearer)
	ctx.Step(`^I log out$`, steps.logOut)
	ctx.Step(`^I forget my session cookies$`, steps.forgetCookies)

	ctx.Step(`^the cookie "([^"]*)" should be set$`, steps.cookieShouldBeSet)
	ctx.Step(`^the cookie "([^"]*)" should be cleared$`, steps.cookieShouldBeCleared)
}

type authSteps struct {
	tc TestContext
	// access token captured before cookies are forgotten
	savedAccess string
}

func (s *authSteps) logInAsDemo(ctx context.Context) error {
	return s.logInAsDemoAt(ctx, "/auth/login")
}

func (s *authSteps) logInAsDemoAt(ctx context.Context, path string) error {
	return s.tc.POST(path, map[string]string{"email": demoEmail, "password": demoPassword})
}

func (s *authSteps) logInWith(ctx context.Context, email, password string) error {
	return s.tc.POST("/auth/login", map[string]string{"email": email, "password": password})
}

func (s *authSteps) refresh(ctx context.Context) error {
	return s.tc.POST("/auth/refresh", map[string]string{})
}

func (s *authSteps) refreshWithToken(ctx context.Context, token string) error {
	return s.tc.POST("/auth/refresh", map[string]string{"refreshToken": token})
}

func (s *authSteps) checkSession(ctx context.Context) error {
	return s.tc.GET("/auth/session", nil)
}

func (s *authSteps) checkSessionWithBearer(ctx context.Context) error {
	if s.savedAccess == "" {
		return fmt.Errorf("no access token was saved")
	}
	return s.tc.GET("/auth/session", map[string]string{"Authorization": "Bearer " + s.savedAccess})
}

func (s *authSteps) logOut(ctx context.Context) error {
	return s.tc.POST("/auth/logout", map[string]string{})
}

func (s *authSteps) forgetCookies(ctx context.Context) error {
	s.savedAccess, _ = s.tc.GetCookie(accessCookie)
	s.tc.SetCookie(accessCookie, "")
	s.tc.SetCookie(refreshCookie, "")
	return nil
}

func (s *authSteps) cookieShouldBeSet(ctx context.Context, name string) error {
	if v, ok := s.tc.GetCookie(name); !ok || v == "" {
		return fmt.Errorf("cookie %s is not set (status %d)", name, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *authSteps) cookieShouldBeCleared(ctx context.Context, name string) error {
	if v, ok := s.tc.GetCookie(name); ok && v != "" {
		return fmt.Errorf("cookie %s is still set", name)
	}
	return nil
}
