package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CacheStats counts cache outcomes.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// CachedStore puts a Redis cache-aside layer in front of the participant and
// contact lookups the realtime path makes on every join and presence change.
// Concurrent misses for the same key share one backend query.
type CachedStore struct {
	Store
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// NewCachedStore wraps store with a Redis cache.
func NewCachedStore(store Store, client *redis.Client, prefix string, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		Store:  store,
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *CachedStore) participantKey(chatID, userID string) string {
	return c.prefix + "participant:" + chatID + ":" + userID
}

func (c *CachedStore) contactsKey(userID string) string {
	return c.prefix + "contacts:" + userID
}

// IsParticipant answers from cache, falling back to the store on a miss.
func (c *CachedStore) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	key := c.participantKey(chatID, userID)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.hits.Add(1)
		return val == "1", nil
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
	default:
		c.errors.Add(1)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		ok, err := c.Store.IsParticipant(ctx, userID, chatID)
		if err != nil {
			return false, err
		}
		cached := "0"
		if ok {
			cached = "1"
		}
		if err := c.client.Set(ctx, key, cached, c.ttl).Err(); err != nil {
			c.errors.Add(1)
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ContactsOf answers from cache, falling back to the store on a miss.
func (c *CachedStore) ContactsOf(ctx context.Context, userID string) ([]string, error) {
	key := c.contactsKey(userID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var contacts []string
		if err := json.Unmarshal(data, &contacts); err == nil {
			c.hits.Add(1)
			return contacts, nil
		}
		c.errors.Add(1)
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
	default:
		c.errors.Add(1)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		contacts, err := c.Store.ContactsOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(contacts); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.errors.Add(1)
			}
		}
		return contacts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// CreateChat creates the chat and drops the participants' cached contacts.
func (c *CachedStore) CreateChat(ctx context.Context, name string, participants []string) (*domain.Chat, error) {
	chat, err := c.Store.CreateChat(ctx, name, participants)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(chat.Participants))
	for _, u := range chat.Participants {
		keys = append(keys, c.contactsKey(u))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.errors.Add(1)
	}
	return chat, nil
}

// Ping checks both the store and Redis.
func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return err
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes Redis and the store.
func (c *CachedStore) Close() error {
	return errors.Join(c.client.Close(), c.Store.Close())
}

// Stats returns a snapshot of the cache counters.
func (c *CachedStore) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
}
