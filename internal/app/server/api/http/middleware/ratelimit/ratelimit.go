package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

// Лимиты запросов в минуту по маршрутам
const (
	DeltaPerMinute    = 20
	FullPerMinute     = 5
	BatchPerMinute    = 10
	StatusPerMinute   = 100
	ResolvePerMinute  = 10
	LogsPerMinute     = 20
	MetricsPerMinute  = 20
	ErrorsPerMinute   = 20
	defaultIdleExpiry = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter хранит token bucket на каждую пару маршрут+клиент
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	idle    time.Duration
	log     *slog.Logger
}

func New(log *slog.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		idle:    defaultIdleExpiry,
		log:     log.With("component", "rate_limiter"),
	}
}

// Middleware ограничивает маршрут route значением perMinute запросов в минуту на клиента.
// Отказ пишется через api в том же формате, что и остальные ошибки.
func (l *Limiter) Middleware(api huma.API, route string, perMinute int) func(huma.Context, func(huma.Context)) {
	every := rateEvery(perMinute)

	return func(ctx huma.Context, next func(huma.Context)) {
		key := route + "|" + clientKey(ctx.RemoteAddr())

		allowed, retryAfter := l.allow(key, every, perMinute)
		if !allowed {
			l.log.Warn("rate limit exceeded", "route", route, "remote_addr", ctx.RemoteAddr())
			l.tooManyRequests(api, ctx, retryAfter)
			return
		}

		next(ctx)
	}
}

func (l *Limiter) allow(key string, every rate.Limit, burst int) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(every, burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep удаляет корзины клиентов, не обращавшихся дольше idle
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run периодически вызывает Sweep до отмены ctx
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("idle buckets removed", "count", n)
			}
		}
	}
}

func (l *Limiter) tooManyRequests(api huma.API, ctx huma.Context, retryAfter time.Duration) {
	ctx.SetHeader("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))

	if err := huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded, retry later"); err != nil {
		l.log.Error("failed to write response", "error", err)
	}
}

func rateEvery(perMinute int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(perMinute))
}

func clientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
