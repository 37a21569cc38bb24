package user

// schema initializes the registry database. Executed on every open;
// all statements are idempotent.
//
// messages are capped per session by deleting rows beyond the newest
// maxHistory after each insert (see Sessions.Append), so history length
// never exceeds the cap after any mutation.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id         TEXT PRIMARY KEY,
	phone_number    TEXT NOT NULL,
	name            TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	total_messages  INTEGER NOT NULL DEFAULT 0,
	total_documents INTEGER NOT NULL DEFAULT 0,
	collection_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	channel       TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	last_activity TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`
