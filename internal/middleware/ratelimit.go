package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/community-events/internal/metrics"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = 15 * time.Minute
)

// LoginRateLimit throttles signup and login per client IP.
//
// Each client gets a token bucket holding `attempts` tokens that refills one
// token every window/attempts. With 5 attempts per 15 minutes a client can
// burst 5 tries and then gets one more every 3 minutes.
type LoginRateLimit struct {
	store      *limiterStore
	retryAfter string
	logger     *slog.Logger
}

// NewLoginRateLimit starts the limiter's cleanup goroutine. Call Stop when
// the server shuts down. attempts <= 0 disables limiting.
func NewLoginRateLimit(attempts int, window time.Duration, logger *slog.Logger) *LoginRateLimit {
	l := &LoginRateLimit{
		store:  newLimiterStore(attempts, window),
		logger: logger,
	}
	if attempts > 0 {
		refill := window / time.Duration(attempts)
		l.retryAfter = strconv.Itoa(int(math.Ceil(refill.Seconds())))
	}
	return l
}

// Handler is the middleware.
func (l *LoginRateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := l.store.limiter(clientKey(r))
		if limiter == nil || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		metrics.LoginRateLimited.Inc()
		l.logger.Warn("login rate limit exceeded",
			slog.String("client", clientKey(r)),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", l.retryAfter)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "rate_limited",
			"message": "Too many attempts. Please try again later.",
		})
	})
}

// Stop ends the cleanup goroutine.
func (l *LoginRateLimit) Stop() {
	l.store.Stop()
}

type limiterStore struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	attempts    int
	every       time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(attempts int, window time.Duration) *limiterStore {
	s := &limiterStore{
		limiters:    make(map[string]*limiterEntry),
		attempts:    attempts,
		stopCleanup: make(chan struct{}),
	}
	if attempts > 0 {
		s.every = window / time.Duration(attempts)
	}

	// Removes entries not seen for entryTTL so an attacker cycling source
	// addresses cannot grow the map without bound.
	go s.cleanupLoop()
	return s
}

func (s *limiterStore) limiter(key string) *rate.Limiter {
	if s.attempts <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[key]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(s.every), s.attempts)
	s.limiters[key] = &limiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes entries that haven't been used within entryTTL of now.
func (s *limiterStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > entryTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// clientKey is the client IP. chi's RealIP middleware, which runs first, has
// already replaced RemoteAddr with the X-Forwarded-For / X-Real-IP address
// when the server sits behind a proxy.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
