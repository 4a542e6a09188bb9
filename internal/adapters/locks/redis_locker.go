package locks

import (
	"context"
	"errors"
	"fleet-route-engine/internal/ports"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if it still carries our token, so an
// expired lease taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker leases routes through SET NX with a TTL. The TTL bounds how long
// a crashed holder can block a route.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: client is nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("redis locker: ttl must be positive, got %s", ttl)
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "route-lease:"}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, routeID string) (func(), error) {
	key := l.prefix + routeID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis locker: acquire %s: %w", routeID, err)
	}
	if !ok {
		return nil, ports.ErrRouteBusy
	}

	unlock := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			log.Printf("redis locker: release route=%s: %v", routeID, err)
		}
	}
	return unlock, nil
}
