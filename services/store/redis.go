package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"kzfm923/madealworker/internal/pipeline"
	"kzfm923/madealworker/logger"
	"kzfm923/madealworker/pkg/errors"
)

// RedisStore keeps uniqueIds in a set and appends full rows to a
// stream, so downstream consumers can tail new listings.
type RedisStore struct {
	client    *redis.Client
	ctx       context.Context
	setKey    string
	stream    string
	maxLength int64
	log       *logger.Logger
}

// NewRedisStore connects to Redis and verifies it is reachable
func NewRedisStore(ctx context.Context, addr string, db int, keyPrefix string, maxLength int64) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewPersist("redis unreachable at "+addr, err)
	}

	return &RedisStore{
		client:    client,
		ctx:       ctx,
		setKey:    keyPrefix + ":ids",
		stream:    keyPrefix + ":records",
		maxLength: maxLength,
		log:       logger.ForStore(),
	}, nil
}

// ExistingIDs returns the members of the id set
func (s *RedisStore) ExistingIDs() (map[string]struct{}, error) {
	members, err := s.client.SMembers(s.ctx, s.setKey).Result()
	if err != nil {
		return nil, errors.NewPersist("failed to read id set", err)
	}

	ids := make(map[string]struct{}, len(members))
	for _, id := range members {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Append adds each record's id to the set and the JSON-encoded record
// to the stream, in one pipeline round trip.
func (s *RedisStore) Append(records []pipeline.FormattedRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return errors.NewPersist("failed to encode record "+rec.UniqueID, err)
		}

		pipe.SAdd(s.ctx, s.setKey, rec.UniqueID)
		pipe.XAdd(s.ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLength,
			Approx: true,
			Values: map[string]interface{}{
				"record": string(payload),
			},
		})
	}

	if _, err := pipe.Exec(s.ctx); err != nil {
		return errors.NewPersist("failed to append records", err)
	}

	s.log.Info().
		Int("rows", len(records)).
		Str("stream", s.stream).
		Msg("Appended records to redis")
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
