package listing

import (
	"context"
	"sync"
	"time"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// Query filters the discovery feed.
type Query struct {
	Limit int
	Tag   string
}

// Source is where listings come from, normally the backend client.
type Source interface {
	ListListings(ctx context.Context, q Query) ([]Listing, error)
}

// Store exposes listing retrieval for handlers and the session manager.
type Store interface {
	List(ctx context.Context, q Query) ([]Listing, error)
	FindByID(ctx context.Context, id string) (Listing, error)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Listing
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied listings.
func NewMemoryStore(items []Listing) *MemoryStore {
	return &MemoryStore{items: append([]Listing(nil), items...)}
}

// List returns the stored listings, optionally filtered by tag.
func (s *MemoryStore) List(_ context.Context, q Query) ([]Listing, error) {
	return filter(s.items, q), nil
}

// FindByID looks up a listing by identifier.
func (s *MemoryStore) FindByID(_ context.Context, id string) (Listing, error) {
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Listing{}, apperr.New(apperr.NotFound, "listing.FindByID", "Listing not found")
}

// CachedStore keeps the last discovery feed for a short TTL so a page view
// and the session it starts see the same immutable listing.
type CachedStore struct {
	source Source
	ttl    time.Duration
	limit  int
	now    func() time.Time

	mu       sync.RWMutex
	items    []Listing
	byID     map[string]Listing
	loadedAt time.Time
}

// NewCachedStore wraps source. limit bounds the feed fetched on refresh.
func NewCachedStore(source Source, ttl time.Duration, limit int) *CachedStore {
	if limit <= 0 {
		limit = 200
	}
	return &CachedStore{
		source: source,
		ttl:    ttl,
		limit:  limit,
		now:    time.Now,
		byID:   make(map[string]Listing),
	}
}

// List serves from cache when fresh. Tag filtering happens locally.
func (s *CachedStore) List(ctx context.Context, q Query) ([]Listing, error) {
	items, err := s.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return filter(items, q), nil
}

// FindByID refreshes once on a miss before reporting NotFound.
func (s *CachedStore) FindByID(ctx context.Context, id string) (Listing, error) {
	if _, err := s.snapshot(ctx, false); err != nil {
		return Listing{}, err
	}
	if item, ok := s.lookup(id); ok {
		return item, nil
	}

	if _, err := s.snapshot(ctx, true); err != nil {
		return Listing{}, err
	}
	if item, ok := s.lookup(id); ok {
		return item, nil
	}
	return Listing{}, apperr.New(apperr.NotFound, "listing.FindByID", "Listing not found")
}

// Invalidate drops the cached feed.
func (s *CachedStore) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

func (s *CachedStore) lookup(id string) (Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byID[id]
	return item, ok
}

func (s *CachedStore) snapshot(ctx context.Context, force bool) ([]Listing, error) {
	s.mu.RLock()
	fresh := !s.loadedAt.IsZero() && s.now().Sub(s.loadedAt) < s.ttl
	items := s.items
	s.mu.RUnlock()

	if fresh && !force {
		return items, nil
	}

	loaded, err := s.source.ListListings(ctx, Query{Limit: s.limit})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Listing, len(loaded))
	for _, item := range loaded {
		byID[item.ID] = item
	}

	s.mu.Lock()
	s.items = loaded
	s.byID = byID
	s.loadedAt = s.now()
	s.mu.Unlock()

	return loaded, nil
}

func filter(items []Listing, q Query) []Listing {
	out := make([]Listing, 0, len(items))
	for _, item := range items {
		if q.Tag != "" && !hasTag(item, q.Tag) {
			continue
		}
		out = append(out, item)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

func hasTag(item Listing, tag string) bool {
	if _, ok := item.Tags[tag]; ok {
		return true
	}
	for _, v := range item.Tags {
		switch val := v.(type) {
		case string:
			if val == tag {
				return true
			}
		case []any:
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == tag {
					return true
				}
			}
		}
	}
	return false
}
