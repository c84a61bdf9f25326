package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"flowin/internal/kv"
)

const DefaultRecentLimit = 10

// Recents is the most-recent-first list of distinct queries a user ran,
// persisted as a JSON array under kv.RecentSearchesKey.
type Recents struct {
	store kv.Store
	key   string
	limit int

	mu   sync.Mutex
	list []string
}

func NewRecents(store kv.Store, userID string, limit int) *Recents {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Recents{store: store, key: kv.RecentSearchesKey(userID), limit: limit}
}

// Load reads the persisted list. A missing key is an empty list.
func (r *Recents) Load(ctx context.Context) ([]string, error) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, err
	}
	list := []string{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("decode recent searches: %w", err)
		}
	}
	if len(list) > r.limit {
		list = list[:r.limit]
	}
	r.mu.Lock()
	r.list = list
	r.mu.Unlock()
	return r.List(), nil
}

func (r *Recents) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.list))
	copy(out, r.list)
	return out
}

// Add moves query to the front. Blank queries are ignored.
func (r *Recents) Add(ctx context.Context, query string) ([]string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return r.List(), nil
	}
	r.mu.Lock()
	next := make([]string, 0, r.limit)
	next = append(next, q)
	for _, s := range r.list {
		if s == q {
			continue
		}
		if len(next) == r.limit {
			break
		}
		next = append(next, s)
	}
	r.list = next
	r.mu.Unlock()
	return r.List(), r.save(ctx, next)
}

func (r *Recents) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.list = []string{}
	r.mu.Unlock()
	return r.store.Delete(ctx, r.key)
}

func (r *Recents) save(ctx context.Context, list []string) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.key, string(raw))
}
