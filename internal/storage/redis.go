package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineUsersKey = "online:users"

// RedisPresence mirrors the presence set into Redis so processes outside the
// tracker (admin tooling, other collaborators) can read it. Each user also
// gets a key with a TTL so a crashed server cannot leave users online forever.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence creates a presence mirror. ttl should match the heartbeat timeout.
func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

// SetOnline adds the user to the online set and refreshes its TTL key.
func (p *RedisPresence) SetOnline(ctx context.Context, userID string) error {
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.Set(ctx, onlineUserKey(userID), "1", p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes the user from the online set.
func (p *RedisPresence) SetOffline(ctx context.Context, userID string) error {
	pipe := p.client.TxPipeline()
	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.Del(ctx, onlineUserKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

// Reset clears the mirror; used at startup because presence does not survive a restart.
func (p *RedisPresence) Reset(ctx context.Context) error {
	members, err := p.client.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	for _, userID := range members {
		pipe.Del(ctx, onlineUserKey(userID))
	}
	pipe.Del(ctx, onlineUsersKey)
	_, err = pipe.Exec(ctx)
	return err
}

// OnlineUsers returns the mirrored set.
func (p *RedisPresence) OnlineUsers(ctx context.Context) ([]string, error) {
	return p.client.SMembers(ctx, onlineUsersKey).Result()
}

func onlineUserKey(userID string) string {
	return "online:" + userID
}
