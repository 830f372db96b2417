package session

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"tripsync/pkg/redis"
)

// RedisStore keeps session state in Redis, scoped by a stable client id so
// several terminals can share one identity
type RedisStore struct {
	client   *redis.Client
	clientID string
}

// NewRedisStore creates a store for clientID
func NewRedisStore(client *redis.Client, clientID string) (*RedisStore, error) {
	if clientID == "" {
		return nil, errors.New("redis session store needs a client id")
	}
	return &RedisStore{client: client, clientID: clientID}, nil
}

// UserName returns the name stored for roomID
func (r *RedisStore) UserName(ctx context.Context, roomID string) (string, error) {
	name, err := r.client.Get(ctx, r.client.KeyBuilder.KeyRoomUserName(r.clientID, roomID))
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get room user name: %w", err)
	}
	return name, nil
}

// SetUserName stores name for roomID
func (r *RedisStore) SetUserName(ctx context.Context, roomID, name string) error {
	key := r.client.KeyBuilder.KeyRoomUserName(r.clientID, roomID)
	if err := r.client.Set(ctx, key, name, redis.TTLRoomUserName); err != nil {
		return fmt.Errorf("set room user name: %w", err)
	}
	return nil
}

// ClearUserName forgets the name stored for roomID
func (r *RedisStore) ClearUserName(ctx context.Context, roomID string) error {
	if err := r.client.Delete(ctx, r.client.KeyBuilder.KeyRoomUserName(r.clientID, roomID)); err != nil {
		return fmt.Errorf("clear room user name: %w", err)
	}
	return nil
}

// TermsAccepted reports whether the given terms version was accepted
func (r *RedisStore) TermsAccepted(ctx context.Context, version string) (bool, error) {
	n, err := r.client.Exists(ctx, r.client.KeyBuilder.KeyTermsAccepted(r.clientID, version))
	if err != nil {
		return false, fmt.Errorf("check terms: %w", err)
	}
	return n > 0, nil
}

// AcceptTerms records acceptance of the given terms version
func (r *RedisStore) AcceptTerms(ctx context.Context, version string) error {
	key := r.client.KeyBuilder.KeyTermsAccepted(r.clientID, version)
	if err := r.client.Set(ctx, key, "true", redis.TTLTermsAccepted); err != nil {
		return fmt.Errorf("accept terms: %w", err)
	}
	return nil
}
