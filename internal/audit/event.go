package audit

import (
	"context"

	"github.com/mssola/useragent"

	"thgate/pkg/platform/privacy"
	"thgate/pkg/requestcontext"
)

// NewEvent builds an event enriched with the request's ID, anonymized client
// prefix and parsed user agent. details is a flat list of key/value pairs;
// a trailing key without a value is dropped.
func NewEvent(ctx context.Context, eventType EventType, details ...string) Event {
	ev := Event{
		Type:      eventType,
		Timestamp: requestcontext.Now(ctx),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		UserAgent: requestcontext.UserAgent(ctx),
	}
	if ev.UserAgent != "" {
		ua := useragent.New(ev.UserAgent)
		ev.Browser, _ = ua.Browser()
		ev.OS = ua.OS()
		ev.Mobile = ua.Mobile()
	}
	if len(details) > 1 {
		ev.Details = make(map[string]string, len(details)/2)
		for i := 0; i+1 < len(details); i += 2 {
			ev.Details[details[i]] = details[i+1]
		}
	}
	return ev
}

// WithUser returns a copy of the event attributed to userID.
func (e Event) WithUser(userID string) Event {
	e.UserID = userID
	return e
}
