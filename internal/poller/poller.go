// Package poller runs the background synchronization loop: it fetches light
// positions every cycle, fetches full details only for aircraft it has not
// seen recently, merges cached details into the live records, annotates each
// record with its distance from the center point and publishes the result to
// an unbounded queue for the consumer to drain.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unklstewy/flight-display/internal/cache"
	"github.com/unklstewy/flight-display/internal/metrics"
	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// State is the lifecycle state of a Poller.
type State int

const (
	// Stopped is the initial and final state
	Stopped State = iota
	// Running means the loop is cycling at the refresh interval
	Running
	// Backoff means the loop is cooling down after repeated failures
	Backoff
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Backoff:
		return "backoff"
	default:
		return "stopped"
	}
}

// Config controls the poll loop.
type Config struct {
	// Bounds is the box passed to every light fetch
	Bounds geo.Bounds

	// CenterLat/CenterLon is the point distances are measured from
	CenterLat float64
	CenterLon float64

	// Limit caps the number of flights per light fetch
	Limit int

	// Mode selects light-only or light+full polling
	Mode flight.Mode

	// RefreshInterval is the wait between cycles (default 10s)
	RefreshInterval time.Duration

	// BackoffThreshold is the consecutive failure count that triggers backoff (default 5)
	BackoffThreshold int

	// BackoffCooldown replaces the refresh interval while backing off (default 30s)
	BackoffCooldown time.Duration

	// CleanupEvery runs cache maintenance on every Nth cycle (default 10)
	CleanupEvery int

	// StopTimeout bounds how long Stop waits for the loop (default 5s)
	StopTimeout time.Duration

	// CacheTTL is the detail cache time-to-live (default 1h)
	CacheTTL time.Duration
}

// DefaultConfig returns the standard cadence with an empty bounding box.
func DefaultConfig() Config {
	return Config{
		Limit:            50,
		Mode:             flight.ModeLight,
		RefreshInterval:  10 * time.Second,
		BackoffThreshold: 5,
		BackoffCooldown:  30 * time.Second,
		CleanupEvery:     10,
		StopTimeout:      5 * time.Second,
		CacheTTL:         cache.DefaultTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.BackoffThreshold <= 0 {
		c.BackoffThreshold = d.BackoffThreshold
	}
	if c.BackoffCooldown <= 0 {
		c.BackoffCooldown = d.BackoffCooldown
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = d.CleanupEvery
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	return c
}

// Stats is a point-in-time view of loop activity.
type Stats struct {
	State               string      `json:"state"`
	Cycles              int         `json:"cycles"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastCycle           time.Time   `json:"last_cycle"`
	Cache               cache.Stats `json:"cache"`
}

// Poller drives a DataSource on a background goroutine.
type Poller struct {
	source  flight.DataSource
	cfg     Config
	log     logger.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	queue   *Queue

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	cache  *cache.DetailCache
	stats  Stats
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		p.log = l
	}
}

// WithMetrics records loop activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithClock replaces time.Now for the detail cache.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.clock = now
	}
}

// New creates a stopped Poller.
func New(source flight.DataSource, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		cfg:    cfg.withDefaults(),
		log:    logger.Nop(),
		clock:  time.Now,
		queue:  NewQueue(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = p.newCache()
	return p
}

func (p *Poller) newCache() *cache.DetailCache {
	return cache.New(p.cfg.CacheTTL,
		cache.WithClock(p.clock),
		cache.WithLogger(p.log.With("component", "cache")),
	)
}

// Results returns the output queue.
func (p *Poller) Results() *Queue {
	return p.queue
}

// Drain dispatches every pending result to h on the calling goroutine.
func (p *Poller) Drain(h Handlers) int {
	return p.queue.Drain(h)
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of loop counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.State = p.state.String()
	return s
}

// Start launches the poll loop. Calling Start on a running Poller only logs a warning.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Stopped {
		p.log.Warn("Poller already running")
		return
	}

	// A loop abandoned by a timed-out Stop may still be finishing a fetch.
	// It keeps its own cache, so the new loop gets a fresh one.
	if p.done != nil {
		select {
		case <-p.done:
		default:
			p.log.Warn("Previous poll loop still running, starting with an empty cache")
			p.cache = p.newCache()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = Running
	p.stats.ConsecutiveFailures = 0

	go p.run(ctx, p.done, p.cache)

	p.log.Info("Background poller started",
		"mode", p.cfg.Mode,
		"bounds", p.cfg.Bounds.String(),
		"interval", p.cfg.RefreshInterval)
}

// Stop signals the loop to exit and waits up to StopTimeout for it. It always
// returns, leaving the Poller Stopped; a loop still blocked in a fetch is
// abandoned and publishes nothing further.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == Stopped {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.state = Stopped
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
		p.log.Info("Background poller stopped")
	case <-time.After(p.cfg.StopTimeout):
		p.log.Warn("Poll loop did not exit in time, abandoning it", "timeout", p.cfg.StopTimeout)
	}
}

// run is the poll loop. ctx is cancelled by Stop; fetches run on a context
// detached from it so an in-flight request completes on its own timeout.
func (p *Poller) run(ctx context.Context, done chan struct{}, dc *cache.DetailCache) {
	defer close(done)

	fetchCtx := context.WithoutCancel(ctx)
	cycle := 0
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		cycle++
		start := time.Now()

		flights, err := p.runCycle(fetchCtx, dc, cycle)
		elapsed := time.Since(start)

		if err != nil {
			failures++
			msg := failureMessage(err)
			p.log.Warn("Poll cycle failed", "error", msg, "consecutive", failures)
			p.metrics.CycleFailed(elapsed, failures)
			p.publish(ctx, Result{Err: msg})
		} else {
			failures = 0
			p.log.Debug("Poll cycle complete", "flights", len(flights), "elapsed", elapsed)
			p.metrics.CycleSucceeded(elapsed, len(flights))
			p.publish(ctx, Result{Flights: flights})
		}

		cacheStats := dc.Stats()
		p.metrics.ObserveCache(cacheStats)

		wait := p.cfg.RefreshInterval
		next := Running
		if failures >= p.cfg.BackoffThreshold {
			next = Backoff
			wait = p.cfg.BackoffCooldown
			p.log.Error("Too many consecutive failures, backing off",
				"failures", failures, "cooldown", wait)
			p.metrics.BackoffEntered()
		}

		p.mu.Lock()
		if ctx.Err() == nil {
			p.state = next
			p.stats.Cycles = cycle
			p.stats.ConsecutiveFailures = failures
			p.stats.LastCycle = start
			p.stats.Cache = cacheStats
		}
		p.mu.Unlock()

		if !sleep(ctx, wait) {
			return
		}
	}
}

// publish pushes r unless the loop that produced it has been stopped.
// Stop cancels ctx under the same lock, so nothing lands after Stop.
func (p *Poller) publish(ctx context.Context, r Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	p.queue.Push(r)
}

// runCycle performs one fetch-merge-annotate pass. A panic anywhere in the
// cycle is converted to an error so the loop keeps running.
func (p *Poller) runCycle(ctx context.Context, dc *cache.DetailCache, cycle int) (flights []flight.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			flights = nil
			err = fmt.Errorf("panic in poll cycle: %v", r)
		}
	}()

	light, err := p.source.FetchLight(ctx, p.cfg.Bounds, p.cfg.Limit)
	if err != nil {
		return nil, err
	}

	current := make(map[string]struct{}, len(light))
	for _, r := range light {
		if r.ID != "" {
			current[r.ID] = struct{}{}
		}
	}

	missing := dc.MissingIDs(current)
	if len(missing) > 0 && p.cfg.Mode == flight.ModeFull {
		p.fetchDetails(ctx, dc, light, missing)
	}

	flights = make([]flight.Record, 0, len(light))
	for _, r := range light {
		flights = append(flights, p.merge(dc, r))
	}

	if cycle%p.cfg.CleanupEvery == 0 {
		departed := dc.CleanupDeparted(current)
		expired := dc.CleanupExpired()
		p.log.Debug("Cache maintenance",
			"departed", departed,
			"expired", expired,
			"size", dc.Size())
	}

	p.log.Debug("Fetched flights", "count", len(flights), "new", len(missing))
	return flights, nil
}

// fetchDetails requests full records for up to MaxDetailCallsigns newcomers,
// in light-batch order, and caches what comes back. Any failure is logged
// and swallowed; the remaining newcomers are retried next cycle.
func (p *Poller) fetchDetails(ctx context.Context, dc *cache.DetailCache, light []flight.Record, missing map[string]struct{}) {
	idByCallsign := make(map[string]string)
	callsigns := make([]string, 0, flight.MaxDetailCallsigns)

	for _, r := range light {
		if _, ok := missing[r.ID]; !ok || r.Callsign == "" {
			continue
		}
		if _, dup := idByCallsign[r.Callsign]; dup {
			continue
		}
		idByCallsign[r.Callsign] = r.ID
		if len(callsigns) < flight.MaxDetailCallsigns {
			callsigns = append(callsigns, r.Callsign)
		}
	}
	if len(callsigns) == 0 {
		return
	}

	p.log.Debug("Fetching details for new flights",
		"requested", len(callsigns),
		"new", len(missing))

	details, err := p.source.FetchFullDetails(ctx, callsigns)
	if err != nil {
		p.log.Warn("Failed to fetch flight details", "error", err)
		p.metrics.DetailRequest(false)
		return
	}
	p.metrics.DetailRequest(true)

	for _, d := range details {
		id := d.ID
		if id == "" {
			id = idByCallsign[d.Callsign]
		}
		if id == "" {
			continue
		}
		dc.Put(id, d.AircraftType, d.Airline, d.Origin, d.Destination, d.Registration)
	}
}

// merge builds a new record from a light record, back-filling empty
// enrichable fields from the cache and recomputing the distance.
func (p *Poller) merge(dc *cache.DetailCache, light flight.Record) flight.Record {
	r := light
	if light.VerticalSpeed != nil {
		vs := *light.VerticalSpeed
		r.VerticalSpeed = &vs
	}

	if e, ok := dc.Get(r.ID); ok {
		r.AircraftType = fill(r.AircraftType, e.AircraftType)
		r.Airline = fill(r.Airline, e.Airline)
		r.Origin = fill(r.Origin, e.Origin)
		r.Destination = fill(r.Destination, e.Destination)
		r.Registration = fill(r.Registration, e.Registration)
	}

	r = flight.Finalize(r)
	r.DistanceKm = geo.DistanceKm(p.cfg.CenterLat, p.cfg.CenterLon, r.Latitude, r.Longitude)
	return r
}

func fill(current, cached string) string {
	if current == "" {
		return cached
	}
	return current
}

// failureMessage is the text shown to the consumer. Classified data source
// errors are shown verbatim; anything else is reported as unexpected.
func failureMessage(err error) string {
	var fe *flight.Error
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return fmt.Sprintf("Unexpected error: %v", err)
}

// sleep waits for d or until ctx is cancelled. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
