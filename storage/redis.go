package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/youssefsiam38/agentctx/types"
)

// DefaultRedisPrefix is the key prefix used when none is given.
const DefaultRedisPrefix = "agentctx:snapshot:"

// RedisStore keeps snapshots in Redis. The snapshot body is a JSON string;
// events live in a separate list so saves only ever append to it.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis store. A ttl of zero keeps keys forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// saveScript appends unseen events and sets the snapshot body in one atomic
// step. An event id is recorded only after its push succeeded and the body is
// written last.
//
// KEYS: snapshot, events, event ids. ARGV: body, ttl ms, then id/event pairs.
var saveScript = redis.NewScript(`
local ttl = tonumber(ARGV[2])
for i = 3, #ARGV, 2 do
	if redis.call('SISMEMBER', KEYS[3], ARGV[i]) == 0 then
		redis.call('RPUSH', KEYS[2], ARGV[i + 1])
		redis.call('SADD', KEYS[3], ARGV[i])
	end
end
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
	redis.call('PEXPIRE', KEYS[3], ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func (s *RedisStore) snapshotKey(sessionID string) string { return s.prefix + sessionID }
func (s *RedisStore) eventsKey(sessionID string) string   { return s.prefix + sessionID + ":events" }
func (s *RedisStore) eventIDsKey(sessionID string) string { return s.prefix + sessionID + ":event_ids" }

// SaveSnapshot implements Store.
func (s *RedisStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	body := *snap
	body.Events = nil
	if body.SavedAt.IsZero() {
		body.SavedAt = time.Now()
	}
	data, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	args := make([]any, 0, 2+2*len(snap.Events))
	args = append(args, data, s.ttl.Milliseconds())
	for _, ev := range snap.Events {
		evData, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		args = append(args, ev.ID, evData)
	}

	keys := []string{
		s.snapshotKey(snap.SessionID),
		s.eventsKey(snap.SessionID),
		s.eventIDsKey(snap.SessionID),
	}
	if err := saveScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements Store.
func (s *RedisStore) LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	raw, err := s.client.LRange(ctx, s.eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	for _, item := range raw {
		var ev types.CompressionEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		snap.Events = append(snap.Events, &ev)
	}

	return &snap, nil
}

// DeleteSnapshot implements Store.
func (s *RedisStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	err := s.client.Del(ctx,
		s.snapshotKey(sessionID),
		s.eventsKey(sessionID),
		s.eventIDsKey(sessionID),
	).Err()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
