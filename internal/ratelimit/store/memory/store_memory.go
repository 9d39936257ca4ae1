package memory

import (
	"context"
	"time"

	"thgate/internal/ratelimit/models"
	platformsync "thgate/pkg/platform/sync"
)

// InMemoryStore keeps client records in process memory. Every operation is a
// single locked read-modify-write on the key's shard.
type InMemoryStore struct {
	records *platformsync.ShardedMap[models.Record]
}

func New() *InMemoryStore {
	return &InMemoryStore{
		records: platformsync.NewShardedMap[models.Record](),
	}
}

// IncrementRequests counts a request. Inside the window the counter grows
// (denied requests included); otherwise the window restarts at now with a
// count of 1.
func (s *InMemoryStore) IncrementRequests(_ context.Context, key string, now time.Time, window time.Duration) (models.Record, error) {
	return s.records.Update(key, func(r models.Record, _ bool) models.Record {
		if r.InWindow(now, window) {
			r.RequestCount++
			return r
		}
		r.RequestCount = 1
		r.WindowStart = now
		return r
	}), nil
}

// IncrementLoginAttempts records a failed login. Attempts older than the
// lockout no longer count, so the counter restarts at 1.
func (s *InMemoryStore) IncrementLoginAttempts(_ context.Context, key string, now time.Time, lockout time.Duration) (models.Record, error) {
	return s.records.Update(key, func(r models.Record, _ bool) models.Record {
		if r.LockoutRemaining(now, lockout) == 0 {
			r.LoginAttempts = 0
		}
		r.LoginAttempts++
		r.LastLoginAttempt = now
		return r
	}), nil
}

func (s *InMemoryStore) ResetLoginAttempts(_ context.Context, key string) error {
	s.records.Update(key, func(r models.Record, _ bool) models.Record {
		r.LoginAttempts = 0
		r.LastLoginAttempt = time.Time{}
		return r
	})
	return nil
}

// Get returns the record for key; the bool is false when none exists.
func (s *InMemoryStore) Get(_ context.Context, key string) (models.Record, bool, error) {
	r, ok := s.records.Get(key)
	return r, ok, nil
}

// Sweep evicts records untouched for at least idle before now and returns
// the evicted count.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time, idle time.Duration) (int, error) {
	return s.records.DeleteFunc(func(_ string, r models.Record) bool {
		return now.Sub(r.IdleSince()) >= idle
	}), nil
}

// Len returns the number of tracked clients.
func (s *InMemoryStore) Len() int {
	return s.records.Len()
}
