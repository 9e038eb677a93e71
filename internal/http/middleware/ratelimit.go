package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Limiter decides whether one more request for key fits in its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a per-process token bucket keyed by client address.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewMemoryLimiter allows rate requests per second with the given burst per
// key. Call Close to stop the eviction loop.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	ml := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go ml.evictLoop(5*time.Minute, 10*time.Minute)
	return ml
}

func (ml *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := ml.now()
	b, ok := ml.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(ml.burst), lastSeen: now}
		ml.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens += elapsed * ml.rate
	}
	if b.tokens > float64(ml.burst) {
		b.tokens = float64(ml.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close stops the eviction loop. Safe to call more than once.
func (ml *MemoryLimiter) Close() {
	ml.once.Do(func() { close(ml.stop) })
}

func (ml *MemoryLimiter) evictLoop(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ml.stop:
			return
		case <-ticker.C:
			ml.evict(idle)
		}
	}
}

func (ml *MemoryLimiter) evict(idle time.Duration) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	cutoff := ml.now().Add(-idle)
	for key, b := range ml.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(ml.buckets, key)
		}
	}
}

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// errors are logged and the request is let through.
func RateLimit(name string, limiter Limiter, m *metrics.ClinicMetrics, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", "limiter", name, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				m.ObserveRateLimited(name)
				w.Header().Set("Retry-After", "1")
				apiresponse.Fail(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey prefers X-Real-Ip, which chi's RealIP middleware sets.
func clientKey(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
