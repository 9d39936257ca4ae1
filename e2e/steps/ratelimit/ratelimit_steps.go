package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers rate limiting and login lockout step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I make (\d+) requests to "([^"]*)"$`, steps.makeNRequests)
	ctx.Step(`^all of them should succeed$`, steps.allShouldSucceed)
	ctx.Step(`^I fail to log in (\d+) times$`, steps.failLoginNTimes)
	ctx.Step(`^every failed attempt should return (\d+)$`, steps.everyAttemptShouldReturn)
}

type ratelimitSteps struct {
	tc             TestContext
	requestResults []int
}

func (s *ratelimitSteps) makeNRequests(ctx context.Context, n int, path string) error {
	s.requestResults = s.requestResults[:0]
	for range n {
		if err := s.tc.GET(path, nil); err != nil {
			return err
		}
		s.requestResults = append(s.requestResults, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) allShouldSucceed(ctx context.Context) error {
	for i, status := range s.requestResults {
		if status != 200 {
			return fmt.Errorf("request %d returned %d", i+1, status)
		}
	}
	return nil
}

func (s *ratelimitSteps) failLoginNTimes(ctx context.Context, n int) error {
	s.requestResults = s.requestResults[:0]
	for range n {
		err := s.tc.POST("/auth/login", map[string]string{
			"email":    "demo@themehackers.com",
			"password": "Wrong-Password1!",
		})
		if err != nil {
			return err
		}
		s.requestResults = append(s.requestResults, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) everyAttemptShouldReturn(ctx context.Context, expected int) error {
	for i, status := range s.requestResults {
		if status != expected {
			return fmt.Errorf("attempt %d returned %d, expected %d. Last response: %s",
				i+1, status, expected, string(s.tc.GetLastResponseBody()))
		}
	}
	return nil
}
