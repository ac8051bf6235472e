// Package ratelimit ограничивает частоту запросов по ключу (обычно IP клиента).
//
// Redis реализует фиксированное окно, общее для всех реплик сервиса.
// Local держит token bucket на ключ в памяти процесса и используется, когда Redis не настроен.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/account-service/internal/lib/sl"
)

// Decision результат проверки лимита.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Redis лимитер с фиксированным окном на INCR/EXPIRE.
type Redis struct {
	client  *redis.Client
	log     *slog.Logger
	prefix  string
	limit   int
	window  time.Duration
	timeout time.Duration
}

// NewRedis создаёт лимитер limit запросов за window поверх существующего клиента.
func NewRedis(client *redis.Client, limit int, window time.Duration, log *slog.Logger) *Redis {
	return &Redis{
		client:  client,
		log:     log,
		prefix:  "ratelimit:",
		limit:   limit,
		window:  window,
		timeout: 250 * time.Millisecond,
	}
}

// Allow учитывает запрос с ключом key. При недоступности Redis запрос пропускается.
func (rl *Redis) Allow(ctx context.Context, key string) Decision {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	counter, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		rl.log.Error("redis rate limiter error", slog.String("cmd", "incr"), sl.Err(err))
		return Decision{Allowed: true}
	}
	if counter == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			rl.log.Error("redis rate limiter error", slog.String("cmd", "expire"), sl.Err(err))
		}
	}

	if int(counter) <= rl.limit {
		return Decision{Allowed: true, Remaining: rl.limit - int(counter)}
	}
	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Local лимитер на x/time/rate с отдельным bucket на каждый ключ.
type Local struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLocal создаёт лимитер, пропускающий в среднем limit запросов за window
// с всплеском до limit.
func NewLocal(limit int, window time.Duration) *Local {
	return &Local{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     window,
		now:      time.Now,
	}
}

// Allow учитывает запрос с ключом key.
func (l *Local) Allow(_ context.Context, key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true, Remaining: int(v.limiter.TokensAt(now))}
}

// sweep удаляет ключи, не обращавшиеся дольше окна.
func (l *Local) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}
