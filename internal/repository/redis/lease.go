package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/freeeve/machiavelli/internal/repository"
)

// releaseScript deletes the lease only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLease claims the resolution lease for a game. It returns an owner
// token for ReleaseLease, or repository.ErrLeaseHeld if another worker holds it.
func (c *Client) AcquireLease(ctx context.Context, gameID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, leaseKey(gameID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return "", repository.ErrLeaseHeld
	}
	return token, nil
}

// ReleaseLease gives up a lease acquired with AcquireLease. Releasing an
// expired or foreign lease is a no-op.
func (c *Client) ReleaseLease(ctx context.Context, gameID, token string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{leaseKey(gameID)}, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
