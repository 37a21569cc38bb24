package user

import (
	"context"
	"fmt"
	"time"
)

// maxHistory is how many messages a session retains. Older rows are
// pruned on every append, so a session never holds more than this.
const maxHistory = 10

// Message is one turn of a conversation session.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func sessionID(userID, channel string) string {
	return userID + ":" + channel
}

// AppendMessage records one turn in the user's session for a channel,
// creating the session on first use, then prunes history beyond the
// newest maxHistory messages.
func (s *Store) AppendMessage(ctx context.Context, userID, channel, role, content string) error {
	sid := sessionID(userID, channel)
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, channel, started_at, last_activity)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET last_activity = excluded.last_activity`,
		sid, userID, channel, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", sid, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		sid, role, content, now,
	)
	if err != nil {
		return fmt.Errorf("appending message to session %s: %w", sid, err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		sid, sid, maxHistory,
	)
	if err != nil {
		return fmt.Errorf("pruning session %s: %w", sid, err)
	}
	return nil
}

// RecentMessages returns up to limit messages from the session in
// chronological order. A session that does not exist yields an empty
// slice.
func (s *Store) RecentMessages(ctx context.Context, userID, channel string, limit int) ([]Message, error) {
	sid := sessionID(userID, channel)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sid, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query walks newest-first; flip back to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ClearSession removes a session and its history. Clearing a session
// that does not exist is a no-op.
func (s *Store) ClearSession(ctx context.Context, userID, channel string) error {
	sid := sessionID(userID, channel)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sid); err != nil {
		return fmt.Errorf("clearing session %s: %w", sid, err)
	}
	return nil
}
