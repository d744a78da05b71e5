// Package redisstore mirrors presence transitions into Redis so other
// intranet services can see who is online without talking to the hub.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultOnlineKey = "chat:online"
	DefaultChannel   = "chat:presence"
)

// PresenceMirror keeps a set of online user IDs and publishes every change.
type PresenceMirror struct {
	rdb     redis.UniversalClient
	key     string
	channel string
}

type presenceNotice struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
	At     int64  `json:"at"`
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects and pings Redis.
func Dial(ctx context.Context, opts Options) (*PresenceMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return New(rdb, DefaultOnlineKey, DefaultChannel), nil
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, key, channel string) *PresenceMirror {
	return &PresenceMirror{rdb: rdb, key: key, channel: channel}
}

func (m *PresenceMirror) Online(ctx context.Context, userID int64) error {
	return m.apply(ctx, userID, "online")
}

func (m *PresenceMirror) Offline(ctx context.Context, userID int64) error {
	return m.apply(ctx, userID, "offline")
}

func (m *PresenceMirror) apply(ctx context.Context, userID int64, status string) error {
	payload, err := json.Marshal(presenceNotice{
		UserID: userID,
		Status: status,
		At:     time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	member := strconv.FormatInt(userID, 10)
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if status == "online" {
			pipe.SAdd(ctx, m.key, member)
		} else {
			pipe.SRem(ctx, m.key, member)
		}
		pipe.Publish(ctx, m.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror %s user %d: %w", status, userID, err)
	}
	return nil
}

// OnlineUsers returns the mirrored set.
func (m *PresenceMirror) OnlineUsers(ctx context.Context) ([]int64, error) {
	members, err := m.rdb.SMembers(ctx, m.key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, raw := range members {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Reset clears entries left behind by a previous process.
func (m *PresenceMirror) Reset(ctx context.Context) error {
	return m.rdb.Del(ctx, m.key).Err()
}

func (m *PresenceMirror) Close() error {
	return m.rdb.Close()
}
