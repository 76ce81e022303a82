package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gis-compliance/internal/model"
)

const (
	redisKeyPrefix = "gis-compliance:session:"
	redisIndexKey  = "gis-compliance:sessions"
)

// RedisOption tunes the Redis client.
type RedisOption func(*redis.Options)

// WithRedisPassword sets the AUTH password.
func WithRedisPassword(pw string) RedisOption {
	return func(o *redis.Options) { o.Password = pw }
}

// WithRedisDB selects the logical database.
func WithRedisDB(db int) RedisOption {
	return func(o *redis.Options) { o.DB = db }
}

// WithRedisDialTimeout sets the dial timeout.
func WithRedisDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// RedisStore implements Store on Redis. Each session is one string value;
// a set indexes the stored keys.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to addr and pings it. A ttl of zero keeps sessions
// until they are overwritten.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, opts ...RedisOption) (*RedisStore, error) {
	if addr == "" {
		return nil, eris.New("redis: address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     8,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, opt := range opts {
		opt(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Save stores the session and returns its Redis key.
func (s *RedisStore) Save(ctx context.Context, req SaveRequest) (string, error) {
	sess, err := build(req)
	if err != nil {
		return "", err
	}
	payload, err := marshalSession(sess)
	if err != nil {
		return "", err
	}

	key := Key(req.Name)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+key, payload, s.ttl)
		pipe.SAdd(ctx, redisIndexKey, key)
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "redis: save session %s", req.Name)
	}
	return redisKeyPrefix + key, nil
}

func (s *RedisStore) Load(ctx context.Context, name string) (*model.Session, error) {
	key := Key(name)
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &NotFoundError{Name: name, Key: key}
		}
		return nil, eris.Wrapf(err, "redis: load session %s", name)
	}
	return decode(name, data)
}

// List returns indexed keys whose value still exists; entries that expired
// are pruned from the index.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list sessions")
	}

	if len(members) == 0 {
		return []string{}, nil
	}

	exists := make([]*redis.IntCmd, len(members))
	if _, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range members {
			exists[i] = pipe.Exists(ctx, redisKeyPrefix+k)
		}
		return nil
	}); err != nil {
		return nil, eris.Wrap(err, "redis: check session keys")
	}

	keys := make([]string, 0, len(members))
	var stale []any
	for i, k := range members {
		if exists[i].Val() == 0 {
			stale = append(stale, k)
			continue
		}
		keys = append(keys, k)
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, redisIndexKey, stale...).Err(); err != nil {
			return nil, eris.Wrap(err, "redis: prune session index")
		}
	}
	slices.Sort(keys)
	return keys, nil
}
