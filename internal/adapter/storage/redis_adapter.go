package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const availableKeyPrefix = "stock:available:"

// checkAvailabilityScript answers the advisory availability question from
// the cached available quantity. A missing key means nothing is known about
// the product yet; the check is advisory, so unknown counts as available and
// the authoritative answer is left to the decrement path.
var checkAvailabilityScript = redis.NewScript(`
local available = redis.call('GET', KEYS[1])
if not available then
	return 1
end

if tonumber(available) >= tonumber(ARGV[1]) then
	return 1
end

return 0
`)

// RedisAdapter caches the available quantity per product for the synchronous
// stock pre-check.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	key := availableKeyPrefix + productID

	result, err := checkAvailabilityScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (r *RedisAdapter) SetAvailable(ctx context.Context, productID string, available int) error {
	key := availableKeyPrefix + productID
	return r.client.Set(ctx, key, available, 0).Err()
}
