package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds the caller's token, so
// a holder whose lock expired cannot release a lock taken by someone else.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	RedisClient redis.UniversalClient
	newToken    func() string
}

func NewClient(dsn string) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	return NewClientFromRedis(redis.NewClient(opts)), nil
}

// NewClientFromRedis wraps an already configured go-redis client
func NewClientFromRedis(redisClient redis.UniversalClient) *Client {
	return &Client{
		RedisClient: redisClient,
		newToken:    uuid.NewString,
	}
}

func (c *Client) Lock(ctx context.Context, lockKey string, lockTimeDuration time.Duration) (token string, acquired bool, err error) {
	token = c.newToken()
	acquired, err = c.RedisClient.SetNX(ctx, lockKey, token, lockTimeDuration).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}

	return token, true, nil
}

func (c *Client) Unlock(ctx context.Context, lockKey, token string) (err error) {
	return unlockScript.Run(ctx, c.RedisClient, []string{lockKey}, token).Err()
}

func (c *Client) Close() (err error) {
	err = c.RedisClient.Close()
	return err
}

func (c *Client) Ping(ctx context.Context) (err error) {
	err = c.RedisClient.Ping(ctx).Err()
	return err
}
