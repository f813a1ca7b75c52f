package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gosight/perfship/internal/config"
)

var (
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrGroupForbidden = errors.New("API key not allowed for log group")
)

// rowQuerier is satisfied by *pgxpool.Pool.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Validator authenticates sink writers and rate limits them per key.
type Validator struct {
	db    rowQuerier
	pool  *pgxpool.Pool
	redis *redis.Client
	limit int64
}

func NewValidator(ctx context.Context, cfg config.SinkConfig) (*Validator, error) {
	// Connect to PostgreSQL
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	v := newValidator(pool, rdb, cfg.RateLimit)
	v.pool = pool
	return v, nil
}

func newValidator(db rowQuerier, rdb *redis.Client, rl config.RateLimitConfig) *Validator {
	return &Validator{
		db:    db,
		redis: rdb,
		limit: int64(rl.RequestsPerSecond + rl.Burst),
	}
}

// ValidateAPIKey checks that apiKey is active and may write to group.
// It returns the key's hash, used as its rate limit identity.
func (v *Validator) ValidateAPIKey(ctx context.Context, apiKey, group string) (string, error) {
	if len(apiKey) < 12 {
		return "", ErrInvalidAPIKey
	}

	hash := sha256.Sum256([]byte(apiKey))
	keyHash := hex.EncodeToString(hash[:])

	// Check cache first
	cacheKey := "apikey:" + keyHash
	allowed, err := v.redis.Get(ctx, cacheKey).Result()
	if err != nil {
		err = v.db.QueryRow(ctx, `
			SELECT log_group FROM sink_api_keys
			WHERE key_hash = $1 AND is_active = true
			AND (expires_at IS NULL OR expires_at > NOW())
		`, keyHash).Scan(&allowed)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidAPIKey
		}
		if err != nil {
			return "", fmt.Errorf("lookup API key: %w", err)
		}

		// Cache for 5 minutes
		v.redis.Set(ctx, cacheKey, allowed, 5*time.Minute)
	}

	if allowed != "*" && allowed != group {
		return "", ErrGroupForbidden
	}
	return keyHash, nil
}

// CheckRateLimit reports whether identity may issue another request in the
// current second.
func (v *Validator) CheckRateLimit(ctx context.Context, identity string) bool {
	key := "ratelimit:" + identity

	// Increment counter
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return true // Allow on error
	}

	// Set expiry on first request
	if count == 1 {
		v.redis.Expire(ctx, key, time.Second)
	}

	return count <= v.limit
}

// Ping checks the Postgres and Redis connections.
func (v *Validator) Ping(ctx context.Context) error {
	if v.pool != nil {
		if err := v.pool.Ping(ctx); err != nil {
			return err
		}
	}
	return v.redis.Ping(ctx).Err()
}

func (v *Validator) Close() {
	if v.pool != nil {
		v.pool.Close()
	}
	if v.redis != nil {
		v.redis.Close()
	}
}
