package registry

import (
	"context"
	"sync"
	"time"
)

// CachingClient decorates a Client with a TTL memory cache so the router
// resolves each worker card at most once per TTL window. Card lookups fall
// back to the last known snapshot when the underlying client errors.
type CachingClient struct {
	next Client
	ttl  time.Duration

	mu      sync.RWMutex
	cards   map[string]cacheEntry
	listAt  time.Time
	listing []Card
}

type cacheEntry struct {
	card      Card
	expiresAt time.Time
}

// NewCachingClient wraps next with a TTL cache. A zero ttl defaults to one
// minute.
func NewCachingClient(next Client, ttl time.Duration) *CachingClient {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingClient{
		next:  next,
		ttl:   ttl,
		cards: make(map[string]cacheEntry),
	}
}

var _ Client = (*CachingClient)(nil)

// ListWorkers returns the cached listing when fresh, otherwise re-lists
// from the underlying client and refreshes the per-card cache.
func (c *CachingClient) ListWorkers(ctx context.Context) ([]Card, error) {
	c.mu.RLock()
	if !c.listAt.IsZero() && time.Since(c.listAt) < c.ttl {
		cards := make([]Card, len(c.listing))
		copy(cards, c.listing)
		c.mu.RUnlock()
		return cards, nil
	}
	c.mu.RUnlock()

	cards, err := c.next.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	c.mu.Lock()
	c.listing = cards
	c.listAt = now
	for _, card := range cards {
		c.cards[card.WorkerID] = cacheEntry{card: card, expiresAt: now.Add(c.ttl)}
	}
	c.mu.Unlock()

	out := make([]Card, len(cards))
	copy(out, cards)
	return out, nil
}

// GetCard resolves a worker card, serving from cache when fresh.
func (c *CachingClient) GetCard(ctx context.Context, workerID string) (*Card, error) {
	c.mu.RLock()
	entry, ok := c.cards[workerID]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		card := entry.card
		return &card, nil
	}

	card, err := c.next.GetCard(ctx, workerID)
	if err != nil {
		if ok {
			// Stale fallback keeps in-flight runs alive across a control
			// plane blip.
			stale := entry.card
			return &stale, nil
		}
		return nil, err
	}
	c.mu.Lock()
	c.cards[workerID] = cacheEntry{card: *card, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return card, nil
}
