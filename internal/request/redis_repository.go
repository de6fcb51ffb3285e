package request

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces ledger keys in a shared Redis database.
const DefaultRedisKeyPrefix = "subjectdesk:pending:"

// Hash fields of a stored pending request.
const (
	redisFieldIdentityID    = "identity_id"
	redisFieldIdentityEmail = "identity_email"
	redisFieldType          = "type"
	redisFieldData          = "data"
	redisFieldTokenHash     = "token_hash"
	redisFieldState         = "state"
	redisFieldCreatedAt     = "created_at"
)

// deleteIfFieldEquals removes KEYS[1] when hash field ARGV[1] equals ARGV[2].
// It returns the number of keys removed.
var deleteIfFieldEquals = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current == ARGV[2] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisRepositoryConfig holds configuration for the Redis repository.
type RedisRepositoryConfig struct {
	Client *redis.Client

	// KeyPrefix namespaces ledger keys. Default: DefaultRedisKeyPrefix.
	KeyPrefix string

	// TTL lets Redis expire entries on its own. Zero keeps entries until
	// they are confirmed or swept.
	TTL time.Duration
}

// RedisRepository is a Redis implementation of Repository.
// Each pending request is one hash; conditional removals run as Lua scripts
// so they are atomic across processes.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRepository creates a new Redis pending request repository.
func NewRedisRepository(cfg RedisRepositoryConfig) *RedisRepository {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisRepository{
		client: cfg.Client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}
}

func (r *RedisRepository) redisKey(key Key) string {
	return r.prefix + key.String()
}

// Get retrieves the pending request for key.
func (r *RedisRepository) Get(ctx context.Context, key Key) (*PendingRequest, error) {
	fields, err := r.client.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisFields(fields)
}

// Put stores req, replacing any request with the same key.
func (r *RedisRepository) Put(ctx context.Context, req *PendingRequest) error {
	redisKey := r.redisKey(req.Key())
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		pipe.HSet(ctx, redisKey, encodeRedisFields(req))
		if r.ttl > 0 {
			pipe.Expire(ctx, redisKey, r.ttl)
		}
		return nil
	})
	return err
}

// DeleteIfMatch removes the pending request for key if it still carries tokenHash.
func (r *RedisRepository) DeleteIfMatch(ctx context.Context, key Key, tokenHash []byte) error {
	n, err := deleteIfFieldEquals.Run(ctx, r.client,
		[]string{r.redisKey(key)},
		redisFieldTokenHash, hex.EncodeToString(tokenHash),
	).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCreatedBefore removes requests created before cutoff.
// Each removal is conditional on the creation time that was read, so a
// request rewritten by another process during the scan is kept.
// Entries written with a TTL usually expire before a sweep sees them.
func (r *RedisRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()

		raw, err := r.client.HGet(ctx, redisKey, redisFieldCreatedAt).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return removed, err
		}

		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return removed, fmt.Errorf("decoding pending request %s: %w", redisKey, err)
		}
		if !createdAt.Before(cutoff) {
			continue
		}

		n, err := deleteIfFieldEquals.Run(ctx, r.client, []string{redisKey}, redisFieldCreatedAt, raw).Int()
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}

	return removed, nil
}

func encodeRedisFields(req *PendingRequest) map[string]interface{} {
	return map[string]interface{}{
		redisFieldIdentityID:    req.Identity.ID,
		redisFieldIdentityEmail: req.Identity.Email,
		redisFieldType:          string(req.Type),
		redisFieldData:          req.Data,
		redisFieldTokenHash:     hex.EncodeToString(req.TokenHash),
		redisFieldState:         string(req.State),
		redisFieldCreatedAt:     req.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeRedisFields(fields map[string]string) (*PendingRequest, error) {
	for _, name := range []string{redisFieldIdentityID, redisFieldType, redisFieldTokenHash, redisFieldCreatedAt} {
		if fields[name] == "" {
			return nil, fmt.Errorf("decoding pending request: missing %s", name)
		}
	}

	tokenHash, err := hex.DecodeString(fields[redisFieldTokenHash])
	if err != nil {
		return nil, fmt.Errorf("decoding pending request token: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields[redisFieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("decoding pending request time: %w", err)
	}

	return &PendingRequest{
		Identity:  Identity{ID: fields[redisFieldIdentityID], Email: fields[redisFieldIdentityEmail]},
		Type:      Type(fields[redisFieldType]),
		Data:      fields[redisFieldData],
		TokenHash: tokenHash,
		State:     State(fields[redisFieldState]),
		CreatedAt: createdAt,
	}, nil
}

// Ensure RedisRepository implements Repository interface.
var _ Repository = (*RedisRepository)(nil)
