package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increments the counter and arms its expiry in one round trip. A key that
// somehow lost its TTL is re-armed rather than counting forever.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Window is the state of a fixed-window counter after one hit.
type Window struct {
	Count   int64
	ResetIn time.Duration
}

// Exceeds reports whether the hit that produced w went over limit.
func (w Window) Exceeds(limit int64) bool {
	return w.Count > limit
}

// Hit counts one event in the fixed window stored at key.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	if c.cmd == nil {
		return Window{}, errNotConnected
	}
	if window < time.Millisecond {
		return Window{}, errors.New("window must be at least 1ms")
	}
	vals, err := windowScript.Run(ctx, c.cmd, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("hit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Window{}, fmt.Errorf("hit %s: unexpected reply %v", key, vals)
	}
	return Window{Count: vals[0], ResetIn: time.Duration(vals[1]) * time.Millisecond}, nil
}
