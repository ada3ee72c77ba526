package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/agentctx/types"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// Migrate creates the store's tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.getQuerier(ctx).Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the working set, original log and offload archive
// of the session. Events already stored are kept; new ones are appended.
// When ctx carries a transaction (see WithTx) the save joins it.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	if tx := TxFromContext(ctx); tx != nil {
		return s.saveSnapshot(ctx, tx, snap)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.saveSnapshot(ctx, tx, snap); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) saveSnapshot(ctx context.Context, q querier, snap *Snapshot) error {
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	batch := &pgx.Batch{}
	batch.Queue(upsertSnapshotSQL, snap.SessionID, savedAt)
	batch.Queue(deleteMessagesSQL, snap.SessionID)
	batch.Queue(deleteOffloadSQL, snap.SessionID)

	if err := queueMessages(batch, snap.SessionID, logWorking, snap.WorkingSet); err != nil {
		return err
	}
	if err := queueMessages(batch, snap.SessionID, logOriginal, snap.OriginalLog); err != nil {
		return err
	}

	for id, msgs := range snap.Offload {
		for i, msg := range msgs {
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal offloaded message: %w", err)
			}
			batch.Queue(insertOffloadSQL, snap.SessionID, id, i, payload)
		}
	}

	for i, ev := range snap.Events {
		metadata, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		batch.Queue(insertEventSQL,
			ev.ID, snap.SessionID, i, ev.Kind, ev.Timestamp, ev.CompressedCount,
			nullString(ev.PreviousMessageID), nullString(ev.NextMessageID),
			nullString(ev.ProducedMessageID), nullString(ev.OffloadID), metadata,
		)
	}

	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to save snapshot %s: %w", snap.SessionID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

func queueMessages(batch *pgx.Batch, sessionID, log string, msgs []*types.Message) error {
	for i, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
		}
		batch.Queue(insertMessageSQL, sessionID, log, i, msg.ID, payload)
	}
	return nil
}

// LoadSnapshot reads the session's snapshot.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	q := s.getQuerier(ctx)
	snap := &Snapshot{SessionID: sessionID, Offload: make(map[string][]*types.Message)}

	err := q.QueryRow(ctx, selectSnapshotSQL, sessionID).Scan(&snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	rows, err := q.Query(ctx, selectMessagesSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	for rows.Next() {
		var log string
		var payload []byte
		if err := rows.Scan(&log, &payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg, err := decodeMessage(payload)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if log == logWorking {
			snap.WorkingSet = append(snap.WorkingSet, msg)
		} else {
			snap.OriginalLog = append(snap.OriginalLog, msg)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	rows, err = q.Query(ctx, selectOffloadSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query offload: %w", err)
	}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan offload entry: %w", err)
		}
		msg, err := decodeMessage(payload)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Offload[id] = append(snap.Offload[id], msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read offload: %w", err)
	}

	rows, err = q.Query(ctx, selectEventsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev types.CompressionEvent
		var metadata []byte
		if err := rows.Scan(
			&ev.ID, &ev.Kind, &ev.Timestamp, &ev.CompressedCount,
			&ev.PreviousMessageID, &ev.NextMessageID, &ev.ProducedMessageID,
			&ev.OffloadID, &metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
		snap.Events = append(snap.Events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return snap, nil
}

// DeleteSnapshot removes the session and, by cascade, its rows.
func (s *PostgresStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if _, err := s.getQuerier(ctx).Exec(ctx, deleteSnapshotSQL, sessionID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func decodeMessage(payload []byte) (*types.Message, error) {
	var msg types.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
