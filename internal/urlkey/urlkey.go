// Package urlkey derives the cache key used by the preview and oEmbed
// caches: a canonical form of the URL and its SHA-256 digest. The digest,
// never the raw URL, is the sole lookup key, so equivalent spellings of
// the same link share one cache row.
package urlkey

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for URLs that must never reach the cache layer.
var ErrInvalidURL = errors.New("invalid url")

// Normalize canonicalizes a raw URL: the scheme and host are lower-cased,
// bare-domain input gets an https scheme, and the path, query and fragment
// are preserved verbatim. Only http and https URLs are accepted.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	// Bare-domain input like "example.com/x" has no scheme; default to https
	// before validation so it parses as an absolute URL.
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)

	return u.String(), nil
}

// Hash returns the hex SHA-256 digest of a canonical URL.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// HashURL normalizes raw and hashes the result in one step.
func HashURL(raw string) (hash, canonical string, err error) {
	canonical, err = Normalize(raw)
	if err != nil {
		return "", "", err
	}
	return Hash(canonical), canonical, nil
}
