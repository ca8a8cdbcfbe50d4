package auth

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDeactivated    = errors.New("user account is deactivated")
)

// User is the account row behind a session.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// Service verifies credentials against the users table.
type Service struct {
	db         *sql.DB
	bcryptCost int
}

func NewService(db *sql.DB, bcryptCost int) *Service {
	return &Service{db: db, bcryptCost: bcryptCost}
}

// Login returns the user for a matching email+password pair.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	var u User
	var passwordHash, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, status
		FROM users
		WHERE LOWER(email) = LOWER(TRIM(?))
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &passwordHash, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if status == "deactivated" {
		return nil, ErrUserDeactivated
	}
	if !CheckPassword(password, passwordHash) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// HashPassword hashes a password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
