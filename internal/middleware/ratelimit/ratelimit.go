// Package ratelimit throttles the expensive API work per client. Rule and
// goal writes and projection reads each get their own per-minute budget;
// cheap reads are never throttled, so budgets reflect the cost of the work
// behind an endpoint rather than raw request volume.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"piano/internal/log"
)

// Class groups endpoints by the cost of serving them.
type Class int

const (
	// Mutation covers rule and goal writes.
	Mutation Class = iota
	// Projection covers forecast, outlook, projection and delta reads,
	// which expand rules and walk interest rate segments.
	Projection

	classCount
)

func (c Class) String() string {
	switch c {
	case Mutation:
		return "mutation"
	case Projection:
		return "projection"
	default:
		return "unknown"
	}
}

// Config sets the per-minute budgets and the idle client sweep.
type Config struct {
	MutationsPerMinute   int
	ProjectionsPerMinute int
	SweepInterval        time.Duration
	IdleEviction         time.Duration
}

// DefaultConfig sizes the budgets for a single household planning its
// finances, not a public API.
func DefaultConfig() Config {
	return Config{
		MutationsPerMinute:   30,
		ProjectionsPerMinute: 20,
		SweepInterval:        5 * time.Minute,
		IdleEviction:         10 * time.Minute,
	}
}

// Limiter tracks per-client, per-class request counts inside a rolling
// minute window and evicts clients that go idle.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window

	denials atomic.Int64

	limits       [classCount]int
	idleEviction time.Duration
	stopSweep    chan struct{}
	stopOnce     sync.Once
	log          *log.Logger
}

// window holds one client's counters. Each class resets independently one
// minute after its window started.
type window struct {
	lastSeen time.Time
	started  [classCount]time.Time
	counts   [classCount]int
}

// NewLimiter starts a limiter and its idle-client sweep goroutine. Call Stop
// on shutdown.
func NewLimiter(cfg Config, logger *log.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.MutationsPerMinute <= 0 {
		cfg.MutationsPerMinute = def.MutationsPerMinute
	}
	if cfg.ProjectionsPerMinute <= 0 {
		cfg.ProjectionsPerMinute = def.ProjectionsPerMinute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = def.IdleEviction
	}
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentRateLimit})
	}

	l := &Limiter{
		clients:      make(map[string]*window),
		idleEviction: cfg.IdleEviction,
		stopSweep:    make(chan struct{}),
		log:          logger.WithComponent(log.ComponentRateLimit),
	}
	l.limits[Mutation] = cfg.MutationsPerMinute
	l.limits[Projection] = cfg.ProjectionsPerMinute
	go l.sweep(cfg.SweepInterval)
	return l
}

// Allow reports whether the client still has budget in the class for the
// current minute. Unknown classes are never throttled.
func (l *Limiter) Allow(clientIP string, class Class) bool {
	if class < 0 || class >= classCount {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.clients[clientIP]
	if !ok {
		w = &window{}
		l.clients[clientIP] = w
	}
	w.lastSeen = now

	if now.Sub(w.started[class]) > time.Minute {
		w.started[class] = now
		w.counts[class] = 0
	}
	w.counts[class]++
	if w.counts[class] > l.limits[class] {
		l.denials.Add(1)
		return false
	}
	return true
}

func (l *Limiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := l.evictIdle(); evicted > 0 {
				l.log.Debug("evicted idle rate limit clients", "count", evicted)
			}
		case <-l.stopSweep:
			return
		}
	}
}

func (l *Limiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.idleEviction)
	evicted := 0
	for ip, w := range l.clients {
		if w.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			evicted++
		}
	}
	return evicted
}

// ActiveClients returns the number of currently tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop shuts down the sweep goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
}

// Metrics are the limiter counters surfaced on the metrics endpoint.
type Metrics struct {
	Denials     int64
	ClientCount int64
}

func (l *Limiter) Metrics() Metrics {
	l.mu.Lock()
	clientCount := int64(len(l.clients))
	l.mu.Unlock()

	return Metrics{
		Denials:     l.denials.Load(),
		ClientCount: clientCount,
	}
}
