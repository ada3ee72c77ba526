package storage

// Schema creates the tables used by PostgresStore and SQLStore.
// Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS agentctx_snapshots (
	session_id TEXT PRIMARY KEY,
	saved_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agentctx_messages (
	session_id TEXT NOT NULL REFERENCES agentctx_snapshots (session_id) ON DELETE CASCADE,
	log        TEXT NOT NULL CHECK (log IN ('working', 'original')),
	position   INT  NOT NULL,
	message_id TEXT NOT NULL,
	payload    JSONB NOT NULL,
	PRIMARY KEY (session_id, log, position)
);

CREATE TABLE IF NOT EXISTS agentctx_offload (
	session_id TEXT NOT NULL REFERENCES agentctx_snapshots (session_id) ON DELETE CASCADE,
	offload_id TEXT NOT NULL,
	position   INT  NOT NULL,
	payload    JSONB NOT NULL,
	PRIMARY KEY (session_id, offload_id, position)
);

CREATE TABLE IF NOT EXISTS agentctx_compression_events (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL REFERENCES agentctx_snapshots (session_id) ON DELETE CASCADE,
	position            INT  NOT NULL,
	kind                TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	compressed_count    INT  NOT NULL,
	previous_message_id TEXT,
	next_message_id     TEXT,
	produced_message_id TEXT,
	offload_id          TEXT,
	metadata            JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agentctx_events_session
	ON agentctx_compression_events (session_id, position);
`

// Log names stored in agentctx_messages.log.
const (
	logWorking  = "working"
	logOriginal = "original"
)

// Shared statements.
const (
	upsertSnapshotSQL = `
		INSERT INTO agentctx_snapshots (session_id, saved_at)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET saved_at = EXCLUDED.saved_at`

	deleteMessagesSQL = `DELETE FROM agentctx_messages WHERE session_id = $1`
	deleteOffloadSQL  = `DELETE FROM agentctx_offload WHERE session_id = $1`

	insertMessageSQL = `
		INSERT INTO agentctx_messages (session_id, log, position, message_id, payload)
		VALUES ($1, $2, $3, $4, $5)`

	insertOffloadSQL = `
		INSERT INTO agentctx_offload (session_id, offload_id, position, payload)
		VALUES ($1, $2, $3, $4)`

	// Events are append-only; re-saving a snapshot keeps existing rows.
	insertEventSQL = `
		INSERT INTO agentctx_compression_events (id, session_id, position, kind, created_at,
			compressed_count, previous_message_id, next_message_id, produced_message_id,
			offload_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	selectSnapshotSQL = `SELECT saved_at FROM agentctx_snapshots WHERE session_id = $1`

	selectMessagesSQL = `
		SELECT log, payload FROM agentctx_messages
		WHERE session_id = $1
		ORDER BY log, position`

	selectOffloadSQL = `
		SELECT offload_id, payload FROM agentctx_offload
		WHERE session_id = $1
		ORDER BY offload_id, position`

	selectEventsSQL = `
		SELECT id, kind, created_at, compressed_count,
			COALESCE(previous_message_id, ''), COALESCE(next_message_id, ''),
			COALESCE(produced_message_id, ''), COALESCE(offload_id, ''), metadata
		FROM agentctx_compression_events
		WHERE session_id = $1
		ORDER BY position, created_at`

	deleteSnapshotSQL = `DELETE FROM agentctx_snapshots WHERE session_id = $1`
)
