package conversation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrConversationNotFound = errors.New("conversation not found")

type Conversation struct {
	ID        string
	Name      string
	CreatedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, name string, createdBy *string) (*Conversation, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, name, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, createdBy, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	return &Conversation{ID: id, Name: name, CreatedBy: createdBy, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var createdBy sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &createdBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	if createdBy.Valid {
		c.CreatedBy = &createdBy.String
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &c, nil
}

// AddParticipant adds a player to a conversation. Adding twice is a no-op.
func (r *Repository) AddParticipant(ctx context.Context, conversationID, playerID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_participants (id, conversation_id, player_id, created_at)
		VALUES (?, ?, ?, ?)
	`, ulid.Make().String(), conversationID, playerID, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Exists reports whether the conversation exists.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsParticipant reports whether the player belongs to the conversation.
func (r *Repository) IsParticipant(ctx context.Context, conversationID, playerID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = ? AND player_id = ?
	`, conversationID, playerID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
