package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/huddle/api/internal/database"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

// TestDB creates an in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("running migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db.DB
}

// hashPassword creates a bcrypt hash with low cost for tests
func hashPassword(password string) string {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), 4)
	return string(hash)
}

// TestUser represents a test user
type TestUser struct {
	ID          string
	Email       string
	DisplayName string
}

// CreateTestUser creates a user row directly in the database.
func CreateTestUser(t *testing.T, db *sql.DB, email, displayName string) *TestUser {
	t.Helper()

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, email, display_name, password_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?, ?)
	`, id, email, displayName, hashPassword("password123"), now, now)
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}

	return &TestUser{ID: id, Email: email, DisplayName: displayName}
}

// TestPlayer represents a test player profile
type TestPlayer struct {
	ID          string
	UserID      *string
	Email       string
	DisplayName string
}

// CreateTestPlayer creates a player linked to a user. Pass an empty userID
// to create an unlinked player (email-fallback case).
func CreateTestPlayer(t *testing.T, db *sql.DB, userID, email, displayName string) *TestPlayer {
	t.Helper()

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	var uid interface{}
	var uidPtr *string
	if userID != "" {
		uid = userID
		uidPtr = &userID
	}

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO players (id, user_id, email, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, uid, email, displayName, now, now)
	if err != nil {
		t.Fatalf("creating test player: %v", err)
	}

	return &TestPlayer{ID: id, UserID: uidPtr, Email: email, DisplayName: displayName}
}

// TestConversation represents a test conversation
type TestConversation struct {
	ID   string
	Name string
}

// CreateTestConversation creates a conversation with the given participants.
func CreateTestConversation(t *testing.T, db *sql.DB, name string, playerIDs ...string) *TestConversation {
	t.Helper()

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO conversations (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, id, name, now, now)
	if err != nil {
		t.Fatalf("creating test conversation: %v", err)
	}

	for _, pid := range playerIDs {
		AddParticipant(t, db, id, pid)
	}

	return &TestConversation{ID: id, Name: name}
}

// AddParticipant adds a player to a conversation.
func AddParticipant(t *testing.T, db *sql.DB, conversationID, playerID string) {
	t.Helper()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO conversation_participants (id, conversation_id, player_id, created_at)
		VALUES (?, ?, ?, ?)
	`, ulid.Make().String(), conversationID, playerID, now)
	if err != nil {
		t.Fatalf("adding participant: %v", err)
	}
}

// CreateTestSession inserts a session row and returns its token.
func CreateTestSession(t *testing.T, db *sql.DB, userID string, expiresAt time.Time) string {
	t.Helper()

	token := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, token, userID, expiresAt.UTC().Format(time.RFC3339), now)
	if err != nil {
		t.Fatalf("creating test session: %v", err)
	}
	return token
}

// TestMessage represents a test message
type TestMessage struct {
	ID             string
	ConversationID string
	PlayerID       string
	Content        string
}

// CreateTestMessage creates a message row with an empty embeds array.
func CreateTestMessage(t *testing.T, db *sql.DB, conversationID, playerID, content string) *TestMessage {
	t.Helper()

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO messages (id, conversation_id, player_id, content, embeds, created_at, updated_at)
		VALUES (?, ?, ?, ?, '[]', ?, ?)
	`, id, conversationID, playerID, content, now, now)
	if err != nil {
		t.Fatalf("creating test message: %v", err)
	}

	return &TestMessage{ID: id, ConversationID: conversationID, PlayerID: playerID, Content: content}
}
