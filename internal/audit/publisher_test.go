package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"thgate/internal/platform/kafka/producer"
	"thgate/pkg/requestcontext"
)

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, Event) error { return f.err }

type recordingProducer struct {
	messages []*producer.Message
}

func (r *recordingProducer) Produce(_ context.Context, msg *producer.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

// PublisherSuite covers sink fan-out and event enrichment.
//
// Justification: security events are the only trace of rejected requests.
// A sink failure must not hide events from the other sinks, and async mode
// must drain on shutdown.
type PublisherSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *PublisherSuite) TestSyncFanOut() {
	s.Run("every sink receives the event even when one fails", func() {
		mem := NewMemorySink()
		boom := errors.New("broker down")
		p := NewPublisher([]Sink{failingSink{err: boom}, mem}, WithPublisherLogger(s.logger))

		err := p.Emit(context.Background(), Event{Type: EventLoginFailed})

		s.ErrorIs(err, boom)
		s.Len(mem.OfType(EventLoginFailed), 1)
	})

	s.Run("zero timestamp is stamped", func() {
		mem := NewMemorySink()
		p := NewPublisher([]Sink{mem})

		s.Require().NoError(p.Emit(context.Background(), Event{Type: EventLogout}))
		s.False(mem.Events()[0].Timestamp.IsZero())
	})
}

func (s *PublisherSuite) TestAsyncDrainsOnClose() {
	mem := NewMemorySink()
	p := NewPublisher([]Sink{mem}, WithAsyncBuffer(16), WithPublisherLogger(s.logger))

	for range 10 {
		s.Require().NoError(p.Emit(context.Background(), Event{Type: EventRateLimited}))
	}
	p.Close()

	s.Len(mem.OfType(EventRateLimited), 10)
}

func (s *PublisherSuite) TestNewEventEnrichment() {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithTime(ctx, now)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.77",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	ev := NewEvent(ctx, EventLoginFailed, "email", "d***@themehackers.com", "dangling")

	s.Equal(EventLoginFailed, ev.Type)
	s.Equal(now, ev.Timestamp)
	s.Equal("req-1", ev.RequestID)
	s.Equal("203.0.113.0", ev.ClientIP, "client address must be anonymized")
	s.Equal("Chrome", ev.Browser)
	s.Contains(ev.OS, "Windows")
	s.False(ev.Mobile)
	s.Equal(map[string]string{"email": "d***@themehackers.com"}, ev.Details)
}

func (s *PublisherSuite) TestNewEventWithoutClient() {
	ev := NewEvent(context.Background(), EventAuthRequest).WithUser("user123")

	s.Equal("unknown", ev.ClientIP)
	s.Empty(ev.Browser)
	s.Nil(ev.Details)
	s.Equal("user123", ev.UserID)
}

func (s *PublisherSuite) TestKafkaSinkEncodesEvent() {
	rec := &recordingProducer{}
	sink := NewKafkaSink(rec)

	ev := Event{Type: EventCSRFRejected, ClientIP: "198.51.100.0", RequestID: "req-9"}
	s.Require().NoError(sink.Write(context.Background(), ev))

	s.Require().Len(rec.messages, 1)
	msg := rec.messages[0]
	s.Equal([]byte("198.51.100.0"), msg.Key)
	s.Equal("csrf_rejected", msg.Headers["event_type"])

	var decoded map[string]any
	s.Require().NoError(json.Unmarshal(msg.Value, &decoded))
	s.Equal("csrf_rejected", decoded["event"])
	s.Equal("req-9", decoded["request_id"])
}
