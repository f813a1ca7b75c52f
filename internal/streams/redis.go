package streams

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// advanceScript compares the presented sequence with the stored head and
// increments it atomically. Returns {1, new} on success, {0, current} on
// mismatch.
var advanceScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) ~= cur then
  return {0, cur}
end
return {1, redis.call('INCR', KEYS[1])}
`)

// RedisHeads shares stream heads between sink replicas.
type RedisHeads struct {
	client *redis.Client
}

func NewRedisHeads(client *redis.Client) *RedisHeads {
	return &RedisHeads{client: client}
}

func (r *RedisHeads) Advance(ctx context.Context, stream string, presented string) (string, bool, error) {
	seq, valid := ParseToken(presented)
	arg := int64(seq)
	if !valid {
		arg = -1
	}

	res, err := advanceScript.Run(ctx, r.client, []string{"stream:head:" + stream}, arg).Int64Slice()
	if err != nil {
		return "", false, err
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("unexpected advance result %v", res)
	}
	return FormatToken(uint64(res[1])), res[0] == 1, nil
}

func (r *RedisHeads) Close() error {
	return r.client.Close()
}
