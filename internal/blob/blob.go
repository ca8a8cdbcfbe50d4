// Package blob stores re-hosted image bytes under opaque references.
// Cache rows keep the reference, never the bytes.
package blob

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob not found")

// Store is the persistence contract for re-hosted images.
type Store interface {
	// Put writes data under ref, overwriting any existing object.
	Put(ctx context.Context, ref string, data []byte, contentType string) error
	// Open returns a reader for ref plus its content type.
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
	// Remove deletes ref. Removing an absent ref is not an error.
	Remove(ctx context.Context, ref string) error
}
