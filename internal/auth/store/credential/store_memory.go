package credential

import (
	"context"
	"sync"

	"thgate/internal/auth/models"
	s "thgate/pkg/string"
)

// InMemoryStore keeps users in process memory, keyed by normalized email.
type InMemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]*models.User
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{byEmail: make(map[string]*models.User)}
}

func (st *InMemoryStore) Save(_ context.Context, user *models.User) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	stored := *user
	st.byEmail[s.NormalizeEmail(user.Email)] = &stored
	return nil
}

func (st *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	user, ok := st.byEmail[s.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	found := *user
	return &found, nil
}
