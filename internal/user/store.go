// Package user implements the per-user registry and conversation session
// store on SQLite. Users are keyed by a stable hash of their phone number,
// so the same sender always resolves to the same identity and the same
// private document collection.
package user

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ragline/ragline/internal/log"
)

// Sentinel errors for user operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// Collections is the slice of the vector store the registry needs: it
// provisions a private collection when a user is created, reads its live
// size for stats, and tears it down on erasure.
type Collections interface {
	EnsureCollection(name string) error
	DeleteCollection(name string) error
	Count(name string) int
}

// User is a registered sender.
type User struct {
	ID             string    `json:"user_id"`
	PhoneNumber    string    `json:"phone_number"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	TotalMessages  int       `json:"total_messages"`
	TotalDocuments int       `json:"total_documents"`
	CollectionName string    `json:"collection_name"`
}

// Stats is the per-user summary shown by the stats command and the
// HTTP user endpoints. DocumentChunks is read live from the vector
// store, not from the registry counter, so it reflects actual stored
// chunks even after out-of-band changes.
type Stats struct {
	Name            string `json:"name"`
	TotalMessages   int    `json:"total_messages"`
	TotalDocuments  int    `json:"total_documents"`
	DocumentChunks  int    `json:"document_chunks"`
	MemberSinceDays int    `json:"member_since_days"`
}

// Store is the SQLite-backed registry of users and their conversation
// sessions. Safe for concurrent use.
type Store struct {
	db          *sql.DB
	collections Collections
	logger      log.Logger
	now         func() time.Time
}

// Open opens (or creates) the registry database at path and applies the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string, collections Collections, logger log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening user database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and a pooled
	// ":memory:" database would otherwise differ per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing user schema: %w", err)
	}

	return &Store{
		db:          db,
		collections: collections,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashPhone derives the stable user ID for a phone number: the first 16
// hex characters of its SHA-256 digest. Raw numbers never appear in
// collection names or log output.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])[:16]
}

// GetOrCreate resolves a phone number to its user, registering a new one
// on first contact. A new user gets a generated display name when name is
// empty, and a freshly provisioned private document collection.
// Repeated calls for the same number return the same user unchanged.
func (s *Store) GetOrCreate(ctx context.Context, phone, name string) (*User, error) {
	id := HashPhone(phone)

	u, err := s.get(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if name == "" {
		name = "User_" + id[:8]
	}
	u = &User{
		ID:             id,
		PhoneNumber:    phone,
		Name:           name,
		CreatedAt:      s.now().UTC(),
		CollectionName: "user_" + id,
	}

	if err := s.collections.EnsureCollection(u.CollectionName); err != nil {
		return nil, fmt.Errorf("provisioning collection for user %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, phone_number, name, created_at, collection_name)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.PhoneNumber, u.Name, u.CreatedAt, u.CollectionName,
	)
	if err != nil {
		return nil, fmt.Errorf("registering user %s: %w", id, err)
	}

	s.logger.Info("registered new user", "user_id", id, "name", u.Name)
	return u, nil
}

// Get returns a user by ID, or ErrUserNotFound.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, phone_number, name, created_at, total_messages, total_documents, collection_name
		 FROM users WHERE user_id = ?`, id,
	).Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.CreatedAt, &u.TotalMessages, &u.TotalDocuments, &u.CollectionName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}
	return &u, nil
}

// IncrementMessages bumps the lifetime message counter.
func (s *Store) IncrementMessages(ctx context.Context, id string) error {
	return s.increment(ctx, id, "total_messages")
}

// IncrementDocuments bumps the lifetime document counter.
func (s *Store) IncrementDocuments(ctx context.Context, id string) error {
	return s.increment(ctx, id, "total_documents")
}

func (s *Store) increment(ctx context.Context, id, column string) error {
	// column is one of two compile-time constants, never user input.
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET "+column+" = "+column+" + 1 WHERE user_id = ?", id)
	if err != nil {
		return fmt.Errorf("incrementing %s for user %s: %w", column, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Stats returns the per-user summary. The chunk count is read live from
// the user's collection.
func (s *Store) Stats(ctx context.Context, id string) (*Stats, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	days := int(s.now().UTC().Sub(u.CreatedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}

	return &Stats{
		Name:            u.Name,
		TotalMessages:   u.TotalMessages,
		TotalDocuments:  u.TotalDocuments,
		DocumentChunks:  s.collections.Count(u.CollectionName),
		MemberSinceDays: days,
	}, nil
}

// List returns all registered users ordered by creation time.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, phone_number, name, created_at, total_messages, total_documents, collection_name
		 FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.CreatedAt,
			&u.TotalMessages, &u.TotalDocuments, &u.CollectionName); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Delete erases a user: registry row, all sessions and history, and the
// private document collection. The whole erasure succeeds or the registry
// is left untouched.
func (s *Store) Delete(ctx context.Context, id string) error {
	u, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting erasure for user %s: %w", id, err)
	}
	defer tx.Rollback()

	// Messages cascade from sessions.
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("deleting sessions for user %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}

	if err := s.collections.DeleteCollection(u.CollectionName); err != nil {
		return fmt.Errorf("deleting collection for user %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing erasure for user %s: %w", id, err)
	}

	s.logger.Info("erased user", "user_id", id)
	return nil
}
