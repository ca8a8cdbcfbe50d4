package access

import (
	"context"
	"errors"

	"github.com/huddle/api/internal/conversation"
	"github.com/huddle/api/internal/player"
)

// PlayerRepoResolver adapts player.Repository to the gate's contract.
type PlayerRepoResolver struct {
	Repo *player.Repository
}

func (a PlayerRepoResolver) GetForUser(ctx context.Context, userID string) (PlayerRef, error) {
	p, err := a.Repo.GetForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, player.ErrPlayerNotFound) {
			return PlayerRef{}, ErrPlayerNotFound
		}
		return PlayerRef{}, err
	}
	return PlayerRef{ID: p.ID}, nil
}

// ConversationRepoChecker adapts conversation.Repository to the gate's
// contract.
type ConversationRepoChecker struct {
	Repo *conversation.Repository
}

func (a ConversationRepoChecker) Exists(ctx context.Context, conversationID string) (bool, error) {
	return a.Repo.Exists(ctx, conversationID)
}

func (a ConversationRepoChecker) IsParticipant(ctx context.Context, conversationID, playerID string) (bool, error) {
	return a.Repo.IsParticipant(ctx, conversationID, playerID)
}
