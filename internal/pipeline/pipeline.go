// Package pipeline turns detected message links into cached previews. Each
// URL is resolved at most once per terminal state: provider hosts go through
// the oEmbed cache, everything else through the generic preview cache with
// optional image re-hosting.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/huddle/api/internal/blob"
	"github.com/huddle/api/internal/imaging"
	"github.com/huddle/api/internal/message"
	"github.com/huddle/api/internal/oembed"
	"github.com/huddle/api/internal/preview"
)

const (
	defaultOembedTTL   = 24 * time.Hour
	defaultTaskTimeout = 30 * time.Second
)

// Options tune the pipeline. Zero values fall back to the defaults above.
type Options struct {
	OembedTTL   time.Duration
	TaskTimeout time.Duration
	UserAgent   string
}

// Pipeline resolves URLs into preview cache rows and projects the result
// onto the originating message's embed entries.
type Pipeline struct {
	previews    *preview.Repository
	messages    *message.Repository
	blobs       blob.Store
	transformer *imaging.Transformer
	oembeds     *oembed.Client
	client      *http.Client
	logger      *slog.Logger
	group       singleflight.Group
	opts        Options
}

// New creates a Pipeline. client is used for page fetches and should be the
// same outbound-safe client the transformer uses.
func New(previews *preview.Repository, messages *message.Repository, blobs blob.Store, transformer *imaging.Transformer, oembeds *oembed.Client, client *http.Client, logger *slog.Logger, opts Options) *Pipeline {
	if opts.OembedTTL <= 0 {
		opts.OembedTTL = defaultOembedTTL
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	return &Pipeline{
		previews:    previews,
		messages:    messages,
		blobs:       blobs,
		transformer: transformer,
		oembeds:     oembeds,
		client:      client,
		logger:      logger,
		opts:        opts,
	}
}

// outcome is what a resolved URL projects back onto a message embed.
type outcome struct {
	status string
	errMsg string
}

// ProcessMessage resolves every embed on msg. Intended to run in its own
// goroutine after message creation; errors end up in cache rows and embed
// statuses, never returned.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *message.Message) {
	for _, emb := range msg.Embeds {
		p.Process(ctx, msg.ID, emb)
	}
}

// Process resolves one embed's URL and projects the result onto the message.
// Concurrent calls for the same URL hash collapse into a single resolution;
// each caller still projects onto its own message.
func (p *Pipeline) Process(ctx context.Context, messageID string, emb message.Embed) {
	v, err, _ := p.group.Do(emb.URLHash, func() (interface{}, error) {
		taskCtx, cancel := context.WithTimeout(ctx, p.opts.TaskTimeout)
		defer cancel()
		return p.resolve(taskCtx, emb)
	})

	var out outcome
	if err != nil {
		// Repository failures land here; the cache row keeps whatever
		// state it had, so a later reference can try again.
		p.logger.Error("preview resolution failed", "url_hash", emb.URLHash, "error", err)
		out = outcome{status: message.EmbedStatusError, errMsg: "internal error"}
	} else {
		out = v.(outcome)
	}

	if messageID == "" {
		return
	}
	if err := p.messages.UpdateEmbedStatus(ctx, messageID, emb.URLHash, out.status, out.errMsg); err != nil {
		p.logger.Error("embed status projection failed", "message_id", messageID, "url_hash", emb.URLHash, "error", err)
	}
}

func (p *Pipeline) resolve(ctx context.Context, emb message.Embed) (outcome, error) {
	if provider, ok := oembed.ProviderFor(emb.URL); ok {
		return p.resolveOembed(ctx, emb, provider)
	}
	return p.resolveGeneric(ctx, emb)
}

// resolveOembed serves the provider-embed cache, fetching from the provider
// endpoint on a miss. Stale rows are served as-is; the sweep owns expiry.
func (p *Pipeline) resolveOembed(ctx context.Context, emb message.Embed, provider string) (outcome, error) {
	cached, err := p.previews.GetOembed(ctx, emb.URLHash)
	if err != nil {
		return outcome{}, err
	}
	if cached != nil {
		return outcome{status: message.EmbedStatusReady}, nil
	}

	fetched, err := p.oembeds.Fetch(ctx, provider, emb.URL)
	if err != nil {
		// No durable error state for provider embeds: the next
		// reference simply retries the endpoint.
		p.logger.Warn("oembed fetch failed", "provider", provider, "url", emb.URL, "error", err)
		return outcome{status: message.EmbedStatusError, errMsg: classifyFetchErr(err)}, nil
	}

	now := time.Now().UTC()
	_, err = p.previews.UpsertOembed(ctx, &preview.OembedRecord{
		URLHash:         emb.URLHash,
		URL:             emb.URL,
		Provider:        provider,
		HTML:            fetched.HTML,
		AuthorName:      fetched.AuthorName,
		ThumbnailURL:    fetched.ThumbnailURL,
		ThumbnailWidth:  fetched.ThumbnailWidth,
		ThumbnailHeight: fetched.ThumbnailHeight,
		Width:           fetched.Width,
		FetchedAt:       now,
		ExpiresAt:       now.Add(p.opts.OembedTTL),
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{status: message.EmbedStatusReady}, nil
}

// resolveGeneric runs the scrape-and-rehost path. Terminal cache rows are
// reused without refetching; pending rows (including rows left behind by an
// interrupted run) are processed to a terminal state.
func (p *Pipeline) resolveGeneric(ctx context.Context, emb message.Embed) (outcome, error) {
	rec, err := p.previews.EnsurePending(ctx, emb.URLHash, emb.URL)
	if err != nil {
		return outcome{}, err
	}
	if rec.Terminal() {
		return outcomeFromRecord(rec), nil
	}

	meta, err := fetchMetadata(ctx, p.client, emb.URL, p.opts.UserAgent)
	if err != nil {
		rec.Status = preview.StatusError
		rec.ErrorMessage = classifyFetchErr(err)
		if _, uerr := p.previews.UpsertPreview(ctx, rec); uerr != nil {
			return outcome{}, uerr
		}
		return outcome{status: message.EmbedStatusError, errMsg: rec.ErrorMessage}, nil
	}

	if meta.empty() {
		rec.Status = preview.StatusNoPreview
		if _, err := p.previews.UpsertPreview(ctx, rec); err != nil {
			return outcome{}, err
		}
		return outcome{status: message.EmbedStatusReady}, nil
	}

	rec.Status = preview.StatusSuccess
	rec.Title = meta.Title
	rec.Description = meta.Description
	rec.SiteName = meta.SiteName
	rec.FaviconURL = meta.FaviconURL

	if meta.ImageURL != "" {
		rec.OriginalImageURL = meta.ImageURL
		p.rehostImage(ctx, rec, meta.ImageURL)
	}

	if _, err := p.previews.UpsertPreview(ctx, rec); err != nil {
		return outcome{}, err
	}
	return outcome{status: message.EmbedStatusReady}, nil
}

// rehostImage resizes the page's image and stores both variants. Any failure
// leaves the record with only the original image URL, which readers use as
// the fallback.
func (p *Pipeline) rehostImage(ctx context.Context, rec *preview.Record, imageURL string) {
	res, err := p.transformer.Process(ctx, imageURL)
	if err != nil {
		p.logger.Warn("image rehost skipped", "url", imageURL, "error", err)
		return
	}

	id := ulid.Make().String()
	fullRef := id + "-full.jpg"
	thumbRef := id + "-thumb.jpg"

	if err := p.blobs.Put(ctx, fullRef, res.Full, "image/jpeg"); err != nil {
		p.logger.Warn("image store failed", "ref", fullRef, "error", err)
		return
	}
	if err := p.blobs.Put(ctx, thumbRef, res.Thumb, "image/jpeg"); err != nil {
		p.logger.Warn("image store failed", "ref", thumbRef, "error", err)
		_ = p.blobs.Remove(ctx, fullRef)
		return
	}

	rec.ImageFullRef = fullRef
	rec.ImageThumbRef = thumbRef
	rec.ImageWidth = res.Width
	rec.ImageHeight = res.Height
}

func outcomeFromRecord(rec *preview.Record) outcome {
	switch rec.Status {
	case preview.StatusError:
		return outcome{status: message.EmbedStatusError, errMsg: rec.ErrorMessage}
	default:
		// success and no_preview both finish the embed; whether a rich
		// card renders is the reader's concern.
		return outcome{status: message.EmbedStatusReady}
	}
}

// classifyFetchErr reduces a page or endpoint fetch error to the short
// diagnostic stored on rows and embeds.
func classifyFetchErr(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return "timeout"
	}
	return "upstream fetch failed"
}
