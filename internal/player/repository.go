package player

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var ErrPlayerNotFound = errors.New("player not found")

// Player is a roster profile. Profiles predate accounts in this system, so
// a player may exist without a user link and is then matched by email.
type Player struct {
	ID          string
	UserID      *string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetForUser resolves the player profile for a user: first by direct link,
// then by normalized email. The fallback exists for rosters imported before
// the player ever signed in.
func (r *Repository) GetForUser(ctx context.Context, userID string) (*Player, error) {
	p, err := r.getBy(ctx, `user_id = ?`, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, err
	}

	var email string
	err = r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, userID).Scan(&email)
	if err == sql.ErrNoRows {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}

	return r.getBy(ctx, `LOWER(TRIM(email)) = ?`, NormalizeEmail(email))
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Player, error) {
	return r.getBy(ctx, `id = ?`, id)
}

func (r *Repository) getBy(ctx context.Context, where string, arg interface{}) (*Player, error) {
	var p Player
	var userID sql.NullString
	var email sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, display_name, created_at, updated_at
		FROM players WHERE `+where, arg).Scan(&p.ID, &userID, &email, &p.DisplayName, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		p.UserID = &userID.String
	}
	p.Email = email.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &p, nil
}

// NormalizeEmail lower-cases and trims an email for fallback matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
