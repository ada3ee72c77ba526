package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentctx/internal/testutil"
)

func TestIntegration_RedisStore(t *testing.T) {
	client := testutil.NewTestRedis(t)

	store := NewRedisStore(client, "agentctx:test:"+uuid.NewString()+":", 0)
	runStoreContract(t, store, uuid.NewString())
}

func TestIntegration_RedisStore_FailedSaveIsRetryable(t *testing.T) {
	client := testutil.NewTestRedis(t)
	ctx := context.Background()

	store := NewRedisStore(client, "agentctx:test:"+uuid.NewString()+":", 0)
	sessionID := uuid.NewString()
	eventsKey := store.eventsKey(sessionID)
	idsKey := store.eventIDsKey(sessionID)
	t.Cleanup(func() { _ = store.DeleteSnapshot(context.Background(), sessionID) })

	// A string under the events key makes the append fail mid-save.
	if err := client.Set(ctx, eventsKey, "not a list", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	snap := newTestSnapshot(sessionID)
	if err := store.SaveSnapshot(ctx, snap); err == nil {
		t.Fatal("SaveSnapshot() error = nil, want error for a broken events key")
	}
	if _, err := store.LoadSnapshot(ctx, sessionID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadSnapshot() after failed save error = %v, want ErrSnapshotNotFound", err)
	}
	recorded, err := client.SIsMember(ctx, idsKey, "evt-1").Result()
	if err != nil {
		t.Fatalf("SIsMember() error = %v", err)
	}
	if recorded {
		t.Error("event id recorded by a failed save")
	}

	if err := client.Del(ctx, eventsKey).Err(); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() retry %d error = %v", i, err)
		}
	}

	got, err := store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(got.Events) != 1 || got.Events[0].ID != "evt-1" {
		t.Errorf("Events after retries = %d entries, want evt-1 once", len(got.Events))
	}
}

func TestIntegration_RedisStore_TTL(t *testing.T) {
	client := testutil.NewTestRedis(t)
	ctx := context.Background()

	store := NewRedisStore(client, "agentctx:test:"+uuid.NewString()+":", time.Minute)
	sessionID := uuid.NewString()
	t.Cleanup(func() { _ = store.DeleteSnapshot(context.Background(), sessionID) })

	if err := store.SaveSnapshot(ctx, newTestSnapshot(sessionID)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	for _, key := range []string{store.snapshotKey(sessionID), store.eventsKey(sessionID), store.eventIDsKey(sessionID)} {
		ttl, err := client.PTTL(ctx, key).Result()
		if err != nil {
			t.Fatalf("PTTL(%s) error = %v", key, err)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("PTTL(%s) = %v, want within (0, 1m]", key, ttl)
		}
	}
}
