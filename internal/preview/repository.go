package preview

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Repository is the content-addressed preview/oEmbed store. All writes are
// idempotent upserts keyed by url_hash, so the store is safe for concurrent
// pipeline runs racing on the same URL: the conflict clause makes the last
// writer win on the full row, never leaving a half-patched record.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsurePending creates a pending row for the hash if none exists and
// returns the current row either way. Existing rows are left untouched, so
// a second message referencing the same URL observes the first's status.
func (r *Repository) EnsurePending(ctx context.Context, hash, originalURL string) (*Record, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_previews (url_hash, original_url, status, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, ?)
		ON CONFLICT(url_hash) DO NOTHING
	`, hash, originalURL, now, now)
	if err != nil {
		return nil, err
	}
	return r.GetOne(ctx, hash)
}

// GetOne returns the preview row for a hash, or nil if absent.
func (r *Repository) GetOne(ctx context.Context, hash string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT url_hash, original_url, status, title, description, site_name, favicon_url,
		       image_full_ref, image_thumb_ref, image_width, image_height, original_image_url,
		       error_message, created_at, updated_at
		FROM link_previews WHERE url_hash = ?
	`, hash)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetMany returns the present rows for a set of hashes. Absent hashes are
// silently omitted.
func (r *Repository) GetMany(ctx context.Context, hashes []string) ([]*Record, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		args[i] = h
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT url_hash, original_url, status, title, description, site_name, favicon_url,
		       image_full_ref, image_thumb_ref, image_width, image_height, original_image_url,
		       error_message, created_at, updated_at
		FROM link_previews
		WHERE url_hash IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// UpsertPreview inserts or patches the row for rec.URLHash with the full
// record contents and returns the surviving row.
func (r *Repository) UpsertPreview(ctx context.Context, rec *Record) (*Record, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_previews (url_hash, original_url, status, title, description, site_name,
			favicon_url, image_full_ref, image_thumb_ref, image_width, image_height,
			original_image_url, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
			original_url = excluded.original_url,
			status = excluded.status,
			title = excluded.title,
			description = excluded.description,
			site_name = excluded.site_name,
			favicon_url = excluded.favicon_url,
			image_full_ref = excluded.image_full_ref,
			image_thumb_ref = excluded.image_thumb_ref,
			image_width = excluded.image_width,
			image_height = excluded.image_height,
			original_image_url = excluded.original_image_url,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, rec.URLHash, rec.OriginalURL, rec.Status,
		nullString(rec.Title), nullString(rec.Description), nullString(rec.SiteName),
		nullString(rec.FaviconURL), nullString(rec.ImageFullRef), nullString(rec.ImageThumbRef),
		nullInt(rec.ImageWidth), nullInt(rec.ImageHeight), nullString(rec.OriginalImageURL),
		nullString(rec.ErrorMessage), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return r.GetOne(ctx, rec.URLHash)
}

// GetOembed returns the oEmbed row for a hash, or nil if absent. Staleness
// is not checked here: rows past expiry are still served until the sweep
// removes them.
func (r *Repository) GetOembed(ctx context.Context, hash string) (*OembedRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT url_hash, url, provider, html, author_name, thumbnail_url,
		       thumbnail_width, thumbnail_height, width, fetched_at, expires_at
		FROM oembed_cache WHERE url_hash = ?
	`, hash)

	rec, err := scanOembed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetManyOembed returns the present oEmbed rows for a set of hashes. Absent
// hashes are silently omitted.
func (r *Repository) GetManyOembed(ctx context.Context, hashes []string) ([]*OembedRecord, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		args[i] = h
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT url_hash, url, provider, html, author_name, thumbnail_url,
		       thumbnail_width, thumbnail_height, width, fetched_at, expires_at
		FROM oembed_cache
		WHERE url_hash IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*OembedRecord
	for rows.Next() {
		rec, err := scanOembed(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// UpsertOembed inserts or replaces the oEmbed row for rec.URLHash.
func (r *Repository) UpsertOembed(ctx context.Context, rec *OembedRecord) (*OembedRecord, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oembed_cache (url_hash, url, provider, html, author_name, thumbnail_url,
			thumbnail_width, thumbnail_height, width, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
			url = excluded.url,
			provider = excluded.provider,
			html = excluded.html,
			author_name = excluded.author_name,
			thumbnail_url = excluded.thumbnail_url,
			thumbnail_width = excluded.thumbnail_width,
			thumbnail_height = excluded.thumbnail_height,
			width = excluded.width,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at
	`, rec.URLHash, rec.URL, rec.Provider, rec.HTML,
		nullString(rec.AuthorName), nullString(rec.ThumbnailURL),
		nullInt(rec.ThumbnailWidth), nullInt(rec.ThumbnailHeight), nullInt(rec.Width),
		rec.FetchedAt.UTC().Format(time.RFC3339), rec.ExpiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return r.GetOembed(ctx, rec.URLHash)
}

// SweepExpiredOembed deletes at most maxBatch oEmbed rows whose expiry is
// before now and returns how many were removed. Callers invoke it on a
// cadence until it reports 0, bounding the work done per call.
func (r *Repository) SweepExpiredOembed(ctx context.Context, now time.Time, maxBatch int) (int, error) {
	if maxBatch <= 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM oembed_cache WHERE url_hash IN (
			SELECT url_hash FROM oembed_cache WHERE expires_at < ? LIMIT ?
		)
	`, now.UTC().Format(time.RFC3339), maxBatch)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var title, description, siteName, faviconURL sql.NullString
	var fullRef, thumbRef, origImageURL, errorMessage sql.NullString
	var width, height sql.NullInt64
	var createdAt, updatedAt string

	err := s.Scan(&rec.URLHash, &rec.OriginalURL, &rec.Status, &title, &description, &siteName,
		&faviconURL, &fullRef, &thumbRef, &width, &height, &origImageURL,
		&errorMessage, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Title = title.String
	rec.Description = description.String
	rec.SiteName = siteName.String
	rec.FaviconURL = faviconURL.String
	rec.ImageFullRef = fullRef.String
	rec.ImageThumbRef = thumbRef.String
	rec.ImageWidth = int(width.Int64)
	rec.ImageHeight = int(height.Int64)
	rec.OriginalImageURL = origImageURL.String
	rec.ErrorMessage = errorMessage.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &rec, nil
}

func scanOembed(s scanner) (*OembedRecord, error) {
	var rec OembedRecord
	var authorName, thumbnailURL sql.NullString
	var thumbW, thumbH, width sql.NullInt64
	var fetchedAt, expiresAt string

	err := s.Scan(&rec.URLHash, &rec.URL, &rec.Provider, &rec.HTML, &authorName, &thumbnailURL,
		&thumbW, &thumbH, &width, &fetchedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	rec.AuthorName = authorName.String
	rec.ThumbnailURL = thumbnailURL.String
	rec.ThumbnailWidth = int(thumbW.Int64)
	rec.ThumbnailHeight = int(thumbH.Int64)
	rec.Width = int(width.Int64)
	rec.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	rec.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)

	return &rec, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
