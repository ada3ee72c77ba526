package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/youssefsiam38/agentctx/types"
)

// SQLStore implements Store on database/sql with the lib/pq driver. It
// shares the schema of PostgresStore.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store on an open *sql.DB.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLStore opens a lib/pq connection for dsn.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the store's tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// SaveSnapshot implements Store.
func (s *SQLStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, upsertSnapshotSQL, snap.SessionID, savedAt); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteMessagesSQL, snap.SessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteOffloadSQL, snap.SessionID); err != nil {
		return fmt.Errorf("failed to clear offload: %w", err)
	}

	insertMessage, err := tx.PrepareContext(ctx, insertMessageSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer insertMessage.Close()

	for log, msgs := range map[string][]*types.Message{logWorking: snap.WorkingSet, logOriginal: snap.OriginalLog} {
		for i, msg := range msgs {
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
			}
			if _, err := insertMessage.ExecContext(ctx, snap.SessionID, log, i, msg.ID, payload); err != nil {
				return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
			}
		}
	}

	for id, msgs := range snap.Offload {
		for i, msg := range msgs {
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal offloaded message: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertOffloadSQL, snap.SessionID, id, i, payload); err != nil {
				return fmt.Errorf("failed to insert offload entry %s: %w", id, err)
			}
		}
	}

	for i, ev := range snap.Events {
		metadata, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertEventSQL,
			ev.ID, snap.SessionID, i, ev.Kind, ev.Timestamp, ev.CompressedCount,
			sqlNullString(ev.PreviousMessageID), sqlNullString(ev.NextMessageID),
			sqlNullString(ev.ProducedMessageID), sqlNullString(ev.OffloadID), metadata,
		); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements Store.
func (s *SQLStore) LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	snap := &Snapshot{SessionID: sessionID, Offload: make(map[string][]*types.Message)}

	err := s.db.QueryRowContext(ctx, selectSnapshotSQL, sessionID).Scan(&snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	logs, err := s.loadLogs(ctx, sessionID, logWorking, logOriginal)
	if err != nil {
		return nil, err
	}
	snap.WorkingSet = logs[logWorking]
	snap.OriginalLog = logs[logOriginal]

	if err := s.loadOffload(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLStore) loadLogs(ctx context.Context, sessionID string, logs ...string) (map[string][]*types.Message, error) {
	const query = `
		SELECT log, payload FROM agentctx_messages
		WHERE session_id = $1 AND log = ANY($2)
		ORDER BY log, position`

	rows, err := s.db.QueryContext(ctx, query, sessionID, pq.Array(logs))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*types.Message, len(logs))
	for rows.Next() {
		var log string
		var payload []byte
		if err := rows.Scan(&log, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg, err := decodeMessage(payload)
		if err != nil {
			return nil, err
		}
		out[log] = append(out[log], msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return out, nil
}

func (s *SQLStore) loadOffload(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, selectOffloadSQL, snap.SessionID)
	if err != nil {
		return fmt.Errorf("failed to query offload: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("failed to scan offload entry: %w", err)
		}
		msg, err := decodeMessage(payload)
		if err != nil {
			return err
		}
		snap.Offload[id] = append(snap.Offload[id], msg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read offload: %w", err)
	}
	return nil
}

func (s *SQLStore) loadEvents(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, selectEventsSQL, snap.SessionID)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
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
			return fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
		snap.Events = append(snap.Events, &ev)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}

// DeleteSnapshot implements Store.
func (s *SQLStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, deleteSnapshotSQL, sessionID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
