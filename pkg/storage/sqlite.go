package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// keyValidFor is how long a session key handed out by the world server
// stays usable. Clients log in immediately after zoning, so the window
// is short.
const keyValidFor = 60 * time.Second

// Store is the SQLite-backed storage collaborator.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and initializes the
// schema if needed.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows readers alongside the single writer
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait and retry instead of failing with SQLITE_BUSY
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	karma INTEGER NOT NULL DEFAULT 0,
	status INTEGER NOT NULL DEFAULT 0,
	revoked INTEGER NOT NULL DEFAULT 0,
	revoked_until INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS characters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	name TEXT NOT NULL UNIQUE,
	level INTEGER NOT NULL DEFAULT 1,
	race INTEGER NOT NULL DEFAULT 0,
	class INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_characters_account ON characters(account_id);

-- One-time session keys, written by the world side at zone-in.
-- Keys are stored hashed; verification is by bcrypt comparison.
CREATE TABLE IF NOT EXISTS session_keys (
	character_name TEXT NOT NULL,
	source_address TEXT NOT NULL,
	key_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (character_name, source_address)
);

CREATE TABLE IF NOT EXISTS friend_lists (
	character_id INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (character_id, kind, name)
);

CREATE TABLE IF NOT EXISTS mail_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	character_id INTEGER NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 1
);

-- Reference mirror of channel ownership and passwords. The live
-- registry is transient; this table exists for admin tooling only.
CREATE TABLE IF NOT EXISTS channels (
	name TEXT PRIMARY KEY,
	owner TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT ''
);
`
	_, err := s.conn.Exec(schema)
	return err
}

// SetKey records a fresh session key for a character connecting from
// sourceAddress, replacing any previous one. Called on behalf of the
// world server at zone-in.
func (s *Store) SetKey(name, sourceAddress, key string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO session_keys (character_name, source_address, key_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (character_name, source_address)
		DO UPDATE SET key_hash = excluded.key_hash, created_at = excluded.created_at`,
		name, sourceAddress, string(hash), time.Now().Unix())
	return err
}

// VerifyKey checks the one-time session key for a character connecting
// from sourceAddress. Expired or unknown keys fail verification.
func (s *Store) VerifyKey(name, sourceAddress, key string) bool {
	var hash string
	var createdAt int64
	err := s.conn.QueryRow(`
		SELECT key_hash, created_at FROM session_keys
		WHERE character_name = ? AND source_address = ?`,
		name, sourceAddress).Scan(&hash, &createdAt)
	if err != nil {
		return false
	}

	if time.Since(time.Unix(createdAt, 0)) > keyValidFor {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// ResolveAccount maps a character name to its account id and the
// account's character summaries, first character first.
func (s *Store) ResolveAccount(name string) (int64, []Character, error) {
	var accountID int64
	err := s.conn.QueryRow(
		`SELECT account_id FROM characters WHERE name = ?`, name).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}

	rows, err := s.conn.Query(`
		SELECT id, name, level, race, class FROM characters
		WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var characters []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(&c.ID, &c.Name, &c.Level, &c.Race, &c.Class); err != nil {
			return 0, nil, err
		}
		characters = append(characters, c)
	}

	return accountID, characters, rows.Err()
}

// FetchAccountStatus returns the account's chat standing. A revocation
// whose expiry has passed is cleared on read.
func (s *Store) FetchAccountStatus(accountID int64) (AccountStatus, error) {
	var st AccountStatus
	var revoked int
	var revokedUntil int64
	err := s.conn.QueryRow(`
		SELECT karma, status, revoked, revoked_until FROM accounts
		WHERE id = ?`, accountID).Scan(&st.Karma, &st.Status, &revoked, &revokedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return AccountStatus{}, ErrNotFound
	}
	if err != nil {
		return AccountStatus{}, err
	}

	st.Revoked = revoked != 0
	if st.Revoked && revokedUntil > 0 && time.Now().Unix() >= revokedUntil {
		st.Revoked = false
		_, err = s.conn.Exec(
			`UPDATE accounts SET revoked = 0, revoked_until = 0 WHERE id = ?`, accountID)
		if err != nil {
			return AccountStatus{}, err
		}
	}

	return st, nil
}

// RecordRevocation marks the account revoked for durationSeconds.
func (s *Store) RecordRevocation(accountID int64, durationSeconds int) error {
	until := time.Now().Unix() + int64(durationSeconds)
	_, err := s.conn.Exec(
		`UPDATE accounts SET revoked = 1, revoked_until = ? WHERE id = ?`,
		until, accountID)
	return err
}

// FindCharacter returns the id of a character by exact name.
func (s *Store) FindCharacter(name string) (int64, error) {
	var id int64
	err := s.conn.QueryRow(
		`SELECT id FROM characters WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

// FriendsAndIgnored returns a character's friend and ignore lists.
func (s *Store) FriendsAndIgnored(charID int64) ([]string, []string, error) {
	rows, err := s.conn.Query(`
		SELECT kind, name FROM friend_lists
		WHERE character_id = ? ORDER BY name`, charID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var friends, ignored []string
	for rows.Next() {
		var kind int
		var name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, nil, err
		}
		if kind == ListKindFriend {
			friends = append(friends, name)
		} else {
			ignored = append(ignored, name)
		}
	}

	return friends, ignored, rows.Err()
}

// AddFriendOrIgnore adds a name to a character's friend or ignore list.
// Adding an existing entry is a no-op.
func (s *Store) AddFriendOrIgnore(charID int64, kind int, name string) error {
	_, err := s.conn.Exec(`
		INSERT INTO friend_lists (character_id, kind, name) VALUES (?, ?, ?)
		ON CONFLICT (character_id, kind, name) DO NOTHING`,
		charID, kind, name)
	return err
}

// RemoveFriendOrIgnore removes a name from a character's friend or
// ignore list. Removing a missing entry is a no-op.
func (s *Store) RemoveFriendOrIgnore(charID int64, kind int, name string) error {
	_, err := s.conn.Exec(`
		DELETE FROM friend_lists WHERE character_id = ? AND kind = ? AND name = ?`,
		charID, kind, name)
	return err
}

// SetMessageStatus updates the status of one mail message.
func (s *Store) SetMessageStatus(messageID int64, status int) error {
	_, err := s.conn.Exec(
		`UPDATE mail_messages SET status = ? WHERE id = ?`, status, messageID)
	return err
}

// SetChannelOwner mirrors a channel's owner for reference.
func (s *Store) SetChannelOwner(channel, owner string) error {
	_, err := s.conn.Exec(`
		INSERT INTO channels (name, owner) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET owner = excluded.owner`,
		channel, owner)
	return err
}

// SetChannelPassword mirrors a channel's password for reference.
func (s *Store) SetChannelPassword(channel, password string) error {
	_, err := s.conn.Exec(`
		INSERT INTO channels (name, password) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET password = excluded.password`,
		channel, password)
	return err
}

// CreateAccount inserts an account, used by admin tooling and tests.
func (s *Store) CreateAccount(name string) (int64, error) {
	res, err := s.conn.Exec(`INSERT INTO accounts (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateCharacter inserts a character, used by admin tooling and tests.
func (s *Store) CreateCharacter(accountID int64, name string, level, race, class int) (int64, error) {
	res, err := s.conn.Exec(`
		INSERT INTO characters (account_id, name, level, race, class)
		VALUES (?, ?, ?, ?, ?)`,
		accountID, name, level, race, class)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetAccountStanding updates karma and status, used by admin tooling
// and tests.
func (s *Store) SetAccountStanding(accountID int64, karma, status int) error {
	_, err := s.conn.Exec(
		`UPDATE accounts SET karma = ?, status = ? WHERE id = ?`,
		karma, status, accountID)
	return err
}
