package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultClipTTL    = 15 * time.Minute
)

type RedisStore struct {
	rdb        *redis.Client
	sessionTTL time.Duration
	clipTTL    time.Duration
}

func NewRedisStore(rdb *redis.Client, sessionTTL, clipTTL time.Duration) *RedisStore {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if clipTTL <= 0 {
		clipTTL = DefaultClipTTL
	}
	return &RedisStore{rdb: rdb, sessionTTL: sessionTTL, clipTTL: clipTTL}
}

// DialRedis parses a redis:// or rediss:// URL and pings the server.
func DialRedis(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := ParseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func (s *RedisStore) keySession(id string) string { return "tutor:session:" + strings.TrimSpace(id) }
func (s *RedisStore) keyClip(id string) string    { return "tutor:clip:" + strings.TrimSpace(id) }

func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, s.keySession(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("cannot save nil tutor session")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.rdb.Set(ctx, s.keySession(sess.ID), raw, s.sessionTTL).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.keySession(id)).Err()
}

func (s *RedisStore) SaveClip(ctx context.Context, id string, audio []byte) error {
	return s.rdb.Set(ctx, s.keyClip(id), audio, s.clipTTL).Err()
}

func (s *RedisStore) LoadClip(ctx context.Context, id string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, s.keyClip(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load clip: %w", err)
	}
	return raw, nil
}
