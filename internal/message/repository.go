package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/huddle/api/internal/oembed"
	"github.com/huddle/api/internal/urlkey"
	"github.com/oklog/ulid/v2"
)

var ErrMessageNotFound = errors.New("message not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a message, extracting URLs from the body and snapshotting
// one pending embed entry per distinct URL. URL detection happens exactly
// once, at creation time; the pipeline later patches entries by url_hash.
func (r *Repository) Create(ctx context.Context, msg *Message) error {
	msg.ID = ulid.Make().String()
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	msg.Embeds = nil
	seen := make(map[string]bool)
	for _, raw := range ExtractURLs(msg.Content) {
		hash, canonical, err := urlkey.HashURL(raw)
		if err != nil {
			// Malformed URLs never reach the cache layer.
			continue
		}
		// Distinctness is by canonical hash, not raw spelling, so casing
		// variants of one URL collapse into a single entry.
		if seen[hash] {
			continue
		}
		seen[hash] = true
		embedType := EmbedTypeLink
		if _, ok := oembed.ProviderFor(canonical); ok {
			embedType = EmbedTypeOembed
		}
		msg.Embeds = append(msg.Embeds, Embed{
			Type:    embedType,
			URL:     canonical,
			URLHash: hash,
			Status:  EmbedStatusPending,
		})
	}

	embedsJSON := "[]"
	if len(msg.Embeds) > 0 {
		data, err := json.Marshal(msg.Embeds)
		if err != nil {
			return fmt.Errorf("marshaling embeds: %w", err)
		}
		embedsJSON = string(data)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, player_id, content, embeds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.PlayerID, msg.Content, embedsJSON,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Message, error) {
	var msg Message
	var playerID sql.NullString
	var embedsJSON, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, player_id, content, embeds, created_at, updated_at
		FROM messages WHERE id = ?
	`, id).Scan(&msg.ID, &msg.ConversationID, &playerID, &msg.Content, &embedsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	if playerID.Valid {
		msg.PlayerID = &playerID.String
	}
	if err := json.Unmarshal([]byte(embedsJSON), &msg.Embeds); err != nil {
		return nil, fmt.Errorf("unmarshaling embeds: %w", err)
	}
	msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	msg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &msg, nil
}

// UpdateEmbedStatus projects a cache result onto the embed entry whose
// url_hash matches, leaving every sibling entry byte-for-byte untouched and
// the array order unchanged. Two races are expected and swallowed: the
// message being deleted mid-flight, and the embed entry no longer existing.
func (r *Repository) UpdateEmbedStatus(ctx context.Context, messageID, urlHash, status, errorMessage string) error {
	// Optimistic read-modify-write; retried when a concurrent writer moved
	// the embeds column underneath us.
	for attempt := 0; attempt < 5; attempt++ {
		var embedsJSON string
		err := r.db.QueryRowContext(ctx,
			`SELECT embeds FROM messages WHERE id = ?`, messageID).Scan(&embedsJSON)
		if err == sql.ErrNoRows {
			slog.Debug("embed update for deleted message", "message_id", messageID, "url_hash", urlHash)
			return nil
		}
		if err != nil {
			return err
		}

		updated, changed, err := patchEmbed(embedsJSON, urlHash, status, errorMessage)
		if err != nil {
			return fmt.Errorf("patching embeds: %w", err)
		}
		if !changed {
			slog.Debug("embed entry missing, update dropped", "message_id", messageID, "url_hash", urlHash)
			return nil
		}

		result, err := r.db.ExecContext(ctx, `
			UPDATE messages SET embeds = ?, updated_at = ?
			WHERE id = ? AND embeds = ?
		`, updated, time.Now().UTC().Format(time.RFC3339), messageID, embedsJSON)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n > 0 {
			return nil
		}
	}
	return fmt.Errorf("embed update for message %s contended too long", messageID)
}

// patchEmbed replaces only the entry matching urlHash inside the raw embeds
// array. Siblings are carried over as raw JSON so they stay byte-identical.
func patchEmbed(embedsJSON, urlHash, status, errorMessage string) (string, bool, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(embedsJSON), &entries); err != nil {
		return "", false, err
	}

	changed := false
	for i, raw := range entries {
		var e Embed
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", false, err
		}
		if e.URLHash != urlHash {
			continue
		}
		e.Status = status
		e.ErrorMessage = errorMessage
		patched, err := json.Marshal(e)
		if err != nil {
			return "", false, err
		}
		entries[i] = patched
		changed = true
		break
	}
	if !changed {
		return "", false, nil
	}

	out, err := json.Marshal(entries)
	if err != nil {
		return "", false, err
	}
	return string(out), true, nil
}
