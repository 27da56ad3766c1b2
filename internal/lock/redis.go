package lock

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/xid"
)

const DefaultTTL = 30 * time.Second

// releaseScript deletes the key only when it still carries our token, so an
// expired lease never frees a lock taken over by another till.
// renewScript pushes the expiry out only while the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(addr string, password string, db int, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, prefix: "orderup:lock:", ttl: ttl}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (Release, error) {
	fullKey := r.prefix + key
	token := xid.New("lease")

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "acquire lock", Err: err}
	}
	if !ok {
		return nil, domain.ErrAlreadyProcessing
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(fullKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be done when the work finishes.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
				log.Warn().Err(err).Str("key", fullKey).Dur("ttl", r.ttl).Msg("lock release failed, lease will expire")
			}
		})
	}, nil
}

// keepAlive renews the lease every third of its TTL until stop is closed, so
// a settlement slower than the TTL keeps its exclusivity. It gives up once the
// key no longer carries token.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			renewed, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("lock renewal failed")
				continue
			}
			if renewed == 0 {
				log.Warn().Str("key", key).Msg("lock lease lost before release")
				return
			}
		}
	}
}
