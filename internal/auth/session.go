package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found or expired")
)

// SessionStore persists opaque bearer tokens in the sessions table.
type SessionStore struct {
	db       *sql.DB
	duration time.Duration
}

func NewSessionStore(db *sql.DB, duration time.Duration) *SessionStore {
	return &SessionStore{db: db, duration: duration}
}

// Create issues a new session token for a user.
func (s *SessionStore) Create(userID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, token, userID, now.Add(s.duration).Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolves a token to a user ID. Expired or unknown tokens yield
// ErrSessionNotFound.
func (s *SessionStore) Validate(token string) (string, error) {
	var userID, expiresAt string
	err := s.db.QueryRow(`
		SELECT user_id, expires_at FROM sessions WHERE token = ?
	`, token).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}

	exp, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil || time.Now().After(exp) {
		return "", ErrSessionNotFound
	}
	return userID, nil
}

// Delete removes a session token.
func (s *SessionStore) Delete(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpired removes all expired sessions.
func (s *SessionStore) DeleteExpired() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339))
	return err
}
