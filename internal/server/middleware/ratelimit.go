package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter ограничивает частоту запросов per-key (обычно client IP).
// Счетчик сбрасывается целиком раз в window (fixed window, не sliding):
// для auth-эндпоинтов этого достаточно, а реализация остается тривиальной.
type RateLimiter struct {
	logger *slog.Logger
	counts map[string]*windowCount
	done   chan struct{}
	rate   int
	window time.Duration
	mu     sync.Mutex
}

type windowCount struct {
	startedAt time.Time
	used      int
}

// NewRateLimiter создает limiter на rate запросов за window
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		logger: logger,
		counts: make(map[string]*windowCount),
		done:   make(chan struct{}),
		rate:   rate,
		window: window,
	}
	go rl.evictLoop()
	return rl
}

// Allow сообщает, разрешен ли очередной запрос для ключа
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	wc, ok := rl.counts[key]
	if !ok || now.Sub(wc.startedAt) >= rl.window {
		wc = &windowCount{startedAt: now}
		rl.counts[key] = wc
	}

	if wc.used >= rl.rate {
		return false
	}
	wc.used++
	return true
}

// Stop завершает фоновую очистку
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// evictLoop выбрасывает ключи, чье окно давно истекло, чтобы map
// не рос бесконечно от разовых клиентов
func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictStale()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) evictStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window * 2)
	for key, wc := range rl.counts {
		if wc.startedAt.Before(cutoff) {
			delete(rl.counts, key)
		}
	}
}

// RateLimitMiddleware отвечает 429 при превышении лимита по client IP
func RateLimitMiddleware(rate int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate, window, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)
			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded",
					"ip", key,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP определяет IP клиента с учетом прокси-заголовков.
// X-Forwarded-For может быть цепочкой, берем первый hop
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
