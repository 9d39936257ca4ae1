package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Start(environment string) error
	SetClientIP(ip string)
	Advance(d time.Duration)
	Do(method, path, body string, headers map[string]string) error
	GET(path string, headers map[string]string) error
	POSTRaw(path, body string) error
	GetResponseField(field string) (any, error)
	ResponseContains(text string) bool
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
	CountEvents(eventType string) int
}

// RegisterSteps registers common step definitions used across features
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Background steps
	ctx.Step(`^the gateway is running$`, steps.gatewayIsRunning)
	ctx.Step(`^the gateway is running in production$`, steps.gatewayIsRunningInProduction)
	ctx.Step(`^I am a client with IP "([^"]*)"$`, steps.clientWithIP)
	ctx.Step(`^(\d+) (seconds?|minutes?) pass(?:es)?$`, steps.timePasses)

	// Generic request steps
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^I GET "([^"]*)" with header "([^"]*)" set to "([^"]*)"$`, steps.getWithHeader)
	ctx.Step(`^I send a (PUT|PATCH|DELETE) request to "([^"]*)"$`, steps.sendMethod)
	ctx.Step(`^I POST the raw body '([^']*)' to "([^"]*)"$`, steps.postRaw)

	// Response assertion steps
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseShouldNotContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the response message should be "([^"]*)"$`, steps.responseMessageShouldBe)
	ctx.Step(`^the response header "([^"]*)" should equal "([^"]*)"$`, steps.responseHeaderShouldEqual)
	ctx.Step(`^the security event "([^"]*)" should be recorded$`, steps.securityEventRecorded)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) gatewayIsRunning(ctx context.Context) error {
	return s.tc.Start("development")
}

func (s *commonSteps) gatewayIsRunningInProduction(ctx context.Context) error {
	return s.tc.Start("production")
}

func (s *commonSteps) clientWithIP(ctx context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

func (s *commonSteps) timePasses(ctx context.Context, n int, unit string) error {
	d := time.Second
	if strings.HasPrefix(unit, "minute") {
		d = time.Minute
	}
	s.tc.Advance(time.Duration(n) * d)
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) getWithHeader(ctx context.Context, path, name, value string) error {
	return s.tc.GET(path, map[string]string{name: value})
}

func (s *commonSteps) sendMethod(ctx context.Context, method, path string) error {
	return s.tc.Do(method, path, "", nil)
}

func (s *commonSteps) postRaw(ctx context.Context, body, path string) error {
	return s.tc.POSTRaw(path, body)
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expected int) error {
	actual := s.tc.GetLastResponseStatus()
	if actual != expected {
		return fmt.Errorf("expected status %d but got %d. Response: %s", expected, actual, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, text string) error {
	if !s.tc.ResponseContains(text) {
		return fmt.Errorf("response does not contain %q. Response: %s", text, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseShouldNotContain(ctx context.Context, text string) error {
	if strings.Contains(string(s.tc.GetLastResponseBody()), text) {
		return fmt.Errorf("response unexpectedly contains %q. Response: %s", text, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseFieldShouldEqual(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if actual := fmt.Sprint(value); actual != expected {
		return fmt.Errorf("expected field %s to equal %q but got %q", field, expected, actual)
	}
	return nil
}

func (s *commonSteps) responseMessageShouldBe(ctx context.Context, expected string) error {
	return s.responseFieldShouldEqual(ctx, "message", expected)
}

func (s *commonSteps) responseHeaderShouldEqual(ctx context.Context, name, expected string) error {
	if actual := s.tc.GetLastResponseHeader(name); actual != expected {
		return fmt.Errorf("expected header %s to equal %q but got %q", name, expected, actual)
	}
	return nil
}

func (s *commonSteps) securityEventRecorded(ctx context.Context, eventType string) error {
	if s.tc.CountEvents(eventType) == 0 {
		return fmt.Errorf("no %s event was recorded", eventType)
	}
	return nil
}
