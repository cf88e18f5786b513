package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps pending challenges in Redis so MFA callbacks survive a
// restart or land on a different instance. GETDEL gives the atomic
// take-and-delete the resolve step requires.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis-backed ChallengeStore.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mfa"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(state string) string {
	return s.prefix + ":challenge:" + state
}

// Put stores the challenge under the state token with the given TTL.
func (s *RedisStore) Put(ctx context.Context, state string, challenge PendingChallenge, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = challengeTTL
	}
	payload, errMarshal := json.Marshal(challenge)
	if errMarshal != nil {
		return fmt.Errorf("mfa: encode challenge: %w", errMarshal)
	}
	if errSet := s.client.Set(ctx, s.key(state), payload, ttl).Err(); errSet != nil {
		return fmt.Errorf("mfa: store challenge: %w", errSet)
	}
	return nil
}

// TakeIfPresent atomically removes and returns the challenge for the state.
func (s *RedisStore) TakeIfPresent(ctx context.Context, state string) (PendingChallenge, bool, error) {
	payload, errGet := s.client.GetDel(ctx, s.key(state)).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return PendingChallenge{}, false, nil
		}
		return PendingChallenge{}, false, fmt.Errorf("mfa: take challenge: %w", errGet)
	}
	var challenge PendingChallenge
	if errUnmarshal := json.Unmarshal(payload, &challenge); errUnmarshal != nil {
		return PendingChallenge{}, false, fmt.Errorf("mfa: decode challenge: %w", errUnmarshal)
	}
	return challenge, true, nil
}
