// Package access gates retrieval of cached / re-hosted images: only a
// participant of the conversation a message belongs to may fetch its
// preview images.
package access

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Denial reasons, one per check. The HTTP layer collapses them for
// untrusted clients; logs keep the distinction.
const (
	DeniedInvalidSession       = "invalid session"
	DeniedSessionExpired       = "expired"
	DeniedNoUser               = "no user"
	DeniedPlayerNotFound       = "player not found"
	DeniedConversationNotFound = "conversation not found"
	DeniedNotAParticipant      = "not a participant"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed  bool
	Reason   string
	PlayerID string
}

// SessionResolver resolves a session token to a user ID.
type SessionResolver interface {
	Validate(token string) (string, error)
}

// PlayerResolver resolves a user to their player profile.
type PlayerResolver interface {
	GetForUser(ctx context.Context, userID string) (PlayerRef, error)
}

// PlayerRef is the minimal player identity the gate needs.
type PlayerRef struct {
	ID string
}

// ConversationChecker answers existence and membership questions.
type ConversationChecker interface {
	Exists(ctx context.Context, conversationID string) (bool, error)
	IsParticipant(ctx context.Context, conversationID, playerID string) (bool, error)
}

// Gate authorizes viewers against conversations.
type Gate struct {
	sessions      SessionResolver
	players       PlayerResolver
	conversations ConversationChecker
}

func NewGate(sessions SessionResolver, players PlayerResolver, conversations ConversationChecker) *Gate {
	return &Gate{sessions: sessions, players: players, conversations: conversations}
}

// Sentinel errors surfaced by the resolvers the gate understands.
var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrSessionExpired  = errors.New("session expired")
	ErrPlayerNotFound  = errors.New("player not found")
)

// Authorize runs the checks in order, short-circuiting on the first
// failure: live session, session→user→player resolution, conversation
// existence, participant membership.
func (g *Gate) Authorize(ctx context.Context, sessionToken, conversationID string) (Decision, error) {
	if sessionToken == "" {
		return Decision{Reason: DeniedInvalidSession}, nil
	}

	userID, err := g.sessions.Validate(sessionToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionExpired):
			return Decision{Reason: DeniedSessionExpired}, nil
		case errors.Is(err, ErrSessionNotFound):
			return Decision{Reason: DeniedInvalidSession}, nil
		}
		return Decision{}, err
	}
	if userID == "" {
		return Decision{Reason: DeniedNoUser}, nil
	}

	playerRef, err := g.players.GetForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			return Decision{Reason: DeniedPlayerNotFound}, nil
		}
		return Decision{}, err
	}

	exists, err := g.conversations.Exists(ctx, conversationID)
	if err != nil {
		return Decision{}, err
	}
	if !exists {
		return Decision{Reason: DeniedConversationNotFound}, nil
	}

	in, err := g.conversations.IsParticipant(ctx, conversationID, playerRef.ID)
	if err != nil {
		return Decision{}, err
	}
	if !in {
		return Decision{Reason: DeniedNotAParticipant}, nil
	}

	return Decision{Allowed: true, PlayerID: playerRef.ID}, nil
}

// SQLSessionResolver validates tokens directly against the sessions table,
// distinguishing an expired session from an unknown one so the gate can
// report the right reason.
type SQLSessionResolver struct {
	DB *sql.DB
}

func (r SQLSessionResolver) Validate(token string) (string, error) {
	var userID, expiresAt string
	err := r.DB.QueryRow(`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	exp, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return "", ErrSessionNotFound
	}
	if time.Now().After(exp) {
		return "", ErrSessionExpired
	}
	return userID, nil
}
