package preview

import "time"

// Preview row statuses. A row is created pending and moves to exactly one
// terminal status; later references to the same URL read the terminal row
// instead of re-triggering a fetch.
const (
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusNoPreview = "no_preview"
)

// Providers with a dedicated oEmbed path.
const (
	ProviderInstagram = "instagram"
	ProviderFacebook  = "facebook"
	ProviderThreads   = "threads"
)

// Record is a URL-level preview cache row shared across messages, keyed by
// the hash of the canonical URL.
type Record struct {
	URLHash          string
	OriginalURL      string
	Status           string
	Title            string
	Description      string
	SiteName         string
	FaviconURL       string
	ImageFullRef     string
	ImageThumbRef    string
	ImageWidth       int
	ImageHeight      int
	OriginalImageURL string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the row has reached a final status.
func (r *Record) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusError || r.Status == StatusNoPreview
}

// OembedRecord is a provider-embed cache row. Unlike previews these carry a
// TTL: a row past ExpiresAt is stale and eligible for the sweep, but readers
// may still serve it until the sweep removes it.
type OembedRecord struct {
	URLHash         string
	URL             string
	Provider        string
	HTML            string
	AuthorName      string
	ThumbnailURL    string
	ThumbnailWidth  int
	ThumbnailHeight int
	Width           int
	FetchedAt       time.Time
	ExpiresAt       time.Time
}
