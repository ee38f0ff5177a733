package lease

import (
	"context"
	"time"

	cloverredis "github.com/Ramsey-B/clover/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireScript sets every key to the token only if none of them exist.
var acquireScript = redis.NewScript(`
	for i = 1, #KEYS do
		if redis.call("exists", KEYS[i]) == 1 then
			return 0
		end
	end
	for i = 1, #KEYS do
		redis.call("set", KEYS[i], ARGV[1], "PX", ARGV[2])
	end
	return 1
`)

// releaseScript deletes the keys still owned by the token.
var releaseScript = redis.NewScript(`
	local released = 0
	for i = 1, #KEYS do
		if redis.call("get", KEYS[i]) == ARGV[1] then
			released = released + redis.call("del", KEYS[i])
		end
	end
	return released
`)

type RedisRegistry struct {
	client    *cloverredis.Client
	keyPrefix string
}

func NewRedisRegistry(client *cloverredis.Client, keyPrefix string) *RedisRegistry {
	if keyPrefix == "" {
		keyPrefix = "clover:lease:"
	}
	return &RedisRegistry{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRegistry) keys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keyPrefix + id
	}
	return keys
}

func (r *RedisRegistry) Acquire(ctx context.Context, ids []string, ttl time.Duration) (*Lease, error) {
	normalized := normalize(ids)
	token := uuid.New().String()

	ok, err := acquireScript.Run(ctx, r.client.Redis(), r.keys(normalized), token, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, ErrHeld
	}

	r.client.Logger().WithContext(ctx).Debugf("Acquired lease over %v", normalized)
	return &Lease{Token: token, IDs: normalized, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (r *RedisRegistry) Release(ctx context.Context, l *Lease) error {
	if l == nil {
		return ErrNotHeld
	}
	released, err := releaseScript.Run(ctx, r.client.Redis(), r.keys(l.IDs), l.Token).Int64()
	if err != nil {
		return err
	}
	if released == 0 {
		return ErrNotHeld
	}
	r.client.Logger().WithContext(ctx).Debugf("Released lease over %v", l.IDs)
	return nil
}
