package message

import "time"

// Embed statuses visible on a message. These track delivery of the preview
// to this message regardless of which cache table backed it.
const (
	EmbedStatusPending = "pending"
	EmbedStatusReady   = "ready"
	EmbedStatusError   = "error"
)

// Embed types.
const (
	EmbedTypeLink   = "link"
	EmbedTypeOembed = "oembed"
)

// Embed is one link detected in the message body at creation time. Exactly
// one entry exists per distinct URL; updates are addressed by url_hash.
type Embed struct {
	Type         string `json:"type"`
	URL          string `json:"url"`
	URLHash      string `json:"url_hash"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PlayerID       *string   `json:"player_id,omitempty"`
	Content        string    `json:"content"`
	Embeds         []Embed   `json:"embeds"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
