package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Status is the externally visible state of one queue entry.
type Status struct {
	Status   string         `json:"status"`
	File     string         `json:"file"`
	Pages    int            `json:"pages"`
	Valid    bool           `json:"valid"`
	Message  string         `json:"message"`
	Start    *time.Time     `json:"start_time,omitempty"`
	End      *time.Time     `json:"end_time,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RedisStatus stores entry statuses as hashes under entry:<id>:status.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RedisStatus{client: c, keyNS: "entry", ttl: ttl}, nil
}

func (s *RedisStatus) key(id string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, id) }

func (s *RedisStatus) Set(ctx context.Context, id string, st Status) error {
	key := s.key(id)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, statusFields(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Ping checks connectivity.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

func statusFields(st Status) map[string]any {
	m := map[string]any{
		"status":  st.Status,
		"file":    st.File,
		"pages":   st.Pages,
		"valid":   strconv.FormatBool(st.Valid),
		"message": st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	return m
}
