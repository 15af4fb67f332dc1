// Package cache remembers slowly-changing flight details (aircraft type,
// airline, route, registration) so that the expensive detail endpoint is only
// queried for aircraft that have not been seen recently.
//
// A DetailCache is owned by a single goroutine and is not safe for
// concurrent use.
package cache

import (
	"time"

	"github.com/unklstewy/flight-display/pkg/logger"
)

// DefaultTTL is how long a detail entry stays valid.
const DefaultTTL = time.Hour

// Entry holds the cached detail for one flight.
type Entry struct {
	ID           string
	AircraftType string
	Airline      string
	Origin       string
	Destination  string
	Registration string

	// CreatedAt is when the entry was stored
	CreatedAt time.Time
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	HitRate float64 `json:"hit_rate"` // percent, 0 when no lookups
}

// DetailCache is a TTL keyed store of flight details.
type DetailCache struct {
	ttl     time.Duration
	now     func() time.Time
	log     logger.Logger
	entries map[string]Entry
	hits    int
	misses  int
}

// Option configures a DetailCache.
type Option func(*DetailCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *DetailCache) {
		c.now = now
	}
}

// WithLogger sets the logger used for eviction messages.
func WithLogger(l logger.Logger) Option {
	return func(c *DetailCache) {
		c.log = l
	}
}

// New creates an empty cache. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration, opts ...Option) *DetailCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &DetailCache{
		ttl:     ttl,
		now:     time.Now,
		log:     logger.Nop(),
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *DetailCache) TTL() time.Duration {
	return c.ttl
}

func (c *DetailCache) expired(e Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) > c.ttl
}

// Get returns the entry for id. An expired entry is deleted and reported as
// a miss. An empty id is always a miss.
func (c *DetailCache) Get(id string) (Entry, bool) {
	if id == "" {
		c.misses++
		return Entry{}, false
	}

	e, ok := c.entries[id]
	if !ok {
		c.misses++
		return Entry{}, false
	}

	if c.expired(e, c.now()) {
		delete(c.entries, id)
		c.misses++
		return Entry{}, false
	}

	c.hits++
	return e, true
}

// Put stores details for id, replacing any existing entry.
func (c *DetailCache) Put(id, aircraftType, airline, origin, destination, registration string) {
	c.entries[id] = Entry{
		ID:           id,
		AircraftType: aircraftType,
		Airline:      airline,
		Origin:       origin,
		Destination:  destination,
		Registration: registration,
		CreatedAt:    c.now(),
	}
}

// MissingIDs returns the candidates that Get reports as absent.
func (c *DetailCache) MissingIDs(ids map[string]struct{}) map[string]struct{} {
	missing := make(map[string]struct{})
	for id := range ids {
		if _, ok := c.Get(id); !ok {
			missing[id] = struct{}{}
		}
	}
	return missing
}

// CleanupExpired removes every entry past its TTL and returns how many were removed.
func (c *DetailCache) CleanupExpired() int {
	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug("Removed expired cache entries", "count", removed)
	}
	return removed
}

// CleanupDeparted removes entries whose id is not in current and returns how
// many were removed. Afterwards every cached key is a member of current.
func (c *DetailCache) CleanupDeparted(current map[string]struct{}) int {
	removed := 0
	for id := range c.entries {
		if _, ok := current[id]; !ok {
			delete(c.entries, id)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug("Removed departed flights from cache", "count", removed)
	}
	return removed
}

// Size returns the number of stored entries, expired ones included.
func (c *DetailCache) Size() int {
	return len(c.entries)
}

// Stats returns hit/miss counters.
func (c *DetailCache) Stats() Stats {
	s := Stats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	return s
}

// Clear removes all entries and resets the counters.
func (c *DetailCache) Clear() {
	c.entries = make(map[string]Entry)
	c.hits = 0
	c.misses = 0
}
