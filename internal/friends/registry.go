// Package friends keeps the client's friend list in memory so the invite
// picker and the accept flow do not re-fetch on every view.
package friends

import (
	"context"
	"errors"
	"sync"

	"github.com/R-koma/calendar-chat/internal/model"
)

// ErrFetchFailed is the user-facing failure for loading the list.
var ErrFetchFailed = errors.New("友達の取得に失敗しました")

// Fetcher is the slice of the REST client the registry needs.
type Fetcher interface {
	Friends(ctx context.Context) ([]model.User, error)
}

// Registry caches the friend list. Add is idempotent by user id, so an
// accepted request arriving twice cannot duplicate an entry.
type Registry struct {
	api Fetcher

	mu      sync.RWMutex
	friends []model.User
}

func NewRegistry(api Fetcher) *Registry {
	return &Registry{api: api}
}

// Load fetches the list from the backend, replacing the cache.
func (r *Registry) Load(ctx context.Context) error {
	friends, err := r.api.Friends(ctx)
	if err != nil {
		return ErrFetchFailed
	}
	r.mu.Lock()
	r.friends = friends
	r.mu.Unlock()
	return nil
}

// Add inserts a new friend locally. A friend already present is left alone.
func (r *Registry) Add(friend model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.friends {
		if f.ID == friend.ID {
			return
		}
	}
	r.friends = append(r.friends, friend)
}

// List returns a snapshot of the cached friends.
func (r *Registry) List() []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.User, len(r.friends))
	copy(out, r.friends)
	return out
}
