package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix    = "safari:date-lock:"
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

var errLockNotHeld = errors.New("date lock not held")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithTTL bounds how long a crashed holder can keep a date locked.
func WithTTL(ttl time.Duration) Option {
	return func(locker *RedisLocker) {
		if ttl > 0 {
			locker.ttl = ttl
		}
	}
}

// WithPollInterval sets the wait between acquisition attempts.
func WithPollInterval(interval time.Duration) Option {
	return func(locker *RedisLocker) {
		if interval > 0 {
			locker.pollInterval = interval
		}
	}
}

// WithKeyPrefix namespaces lock keys.
func WithKeyPrefix(prefix string) Option {
	return func(locker *RedisLocker) {
		locker.keyPrefix = prefix
	}
}

// WithTokenGenerator overrides how ownership tokens are minted.
func WithTokenGenerator(generate func() string) Option {
	return func(locker *RedisLocker) {
		if generate != nil {
			locker.newToken = generate
		}
	}
}

// WithLogger reports release failures.
func WithLogger(logger *zap.Logger) Option {
	return func(locker *RedisLocker) {
		if logger != nil {
			locker.logger = logger
		}
	}
}

// RedisLocker serializes safari dates across processes sharing one redis.
type RedisLocker struct {
	client       redis.UniversalClient
	keyPrefix    string
	ttl          time.Duration
	pollInterval time.Duration
	newToken     func() string
	logger       *zap.Logger
}

// NewRedisLocker returns a safari.DateLocker backed by SET NX.
func NewRedisLocker(client redis.UniversalClient, options ...Option) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", safari.ErrInvalidServiceConfig)
	}
	locker := &RedisLocker{
		client:       client,
		keyPrefix:    defaultKeyPrefix,
		ttl:          defaultLockTTL,
		pollInterval: defaultPollInterval,
		newToken:     uuid.NewString,
		logger:       zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(locker)
		}
	}
	return locker, nil
}

// Lock blocks until the date is free or ctx ends.
func (locker *RedisLocker) Lock(ctx context.Context, date safari.SafariDate) (func(), error) {
	key := locker.keyPrefix + date.String()
	token := locker.newToken()
	for {
		acquired, err := locker.client.SetNX(ctx, key, token, locker.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if acquired {
			return func() { locker.release(key, token) }, nil
		}
		timer := time.NewTimer(locker.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("redis lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (locker *RedisLocker) release(key string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	released, err := releaseScript.Run(ctx, locker.client, []string{key}, token).Int64()
	if err == nil && released == 0 {
		err = errLockNotHeld
	}
	if err != nil {
		locker.logger.Warn("date lock release failed", zap.String("key", key), zap.Error(err))
	}
}
