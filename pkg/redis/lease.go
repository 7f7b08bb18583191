package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Deletes KEYS[1] only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// ReleaseIfHeld drops a SETNX lease when token still owns it. A lease that
// expired and was re-taken by someone else is left in place and false is
// returned.
func (c *Client) ReleaseIfHeld(ctx context.Context, key, token string) (bool, error) {
	if c.cmd == nil {
		return false, errNotConnected
	}
	n, err := releaseScript.Run(ctx, c.cmd, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}
