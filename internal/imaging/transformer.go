// Package imaging fetches a remote image under hard resource limits and
// produces two resized JPEG variants for re-hosting.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"image/jpeg"
)

// Classified transform failures. Every violation of a hard limit is an
// error, never a best-effort partial result.
var (
	ErrBadURL      = errors.New("unsupported url")
	ErrTimeout     = errors.New("image fetch timed out")
	ErrNotAnImage  = errors.New("response is not an image")
	ErrTooLarge    = errors.New("image exceeds size limit")
	ErrCorrupt     = errors.New("image data is corrupt")
	ErrFetchFailed = errors.New("image fetch failed")
)

const (
	defaultMaxBytes     = 5 << 20 // 5 MiB
	defaultFetchTimeout = 5 * time.Second
	defaultThumbEdge    = 320
	defaultFullEdge     = 640
	defaultQuality      = 70
)

// Result carries the encoded variants plus the original (pre-resize) pixel
// dimensions, which callers store for layout.
type Result struct {
	Full   []byte
	Thumb  []byte
	Width  int
	Height int
}

// Options tune the transformer. Zero values fall back to the defaults above.
type Options struct {
	MaxBytes     int64
	FetchTimeout time.Duration
	ThumbEdge    int
	FullEdge     int
	Quality      int
	UserAgent    string
}

// Transformer fetches and resizes remote images.
type Transformer struct {
	client *http.Client
	opts   Options
}

// NewTransformer creates a Transformer using the given HTTP client.
func NewTransformer(client *http.Client, opts Options) *Transformer {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.ThumbEdge <= 0 {
		opts.ThumbEdge = defaultThumbEdge
	}
	if opts.FullEdge <= 0 {
		opts.FullEdge = defaultFullEdge
	}
	if opts.Quality <= 0 {
		opts.Quality = defaultQuality
	}
	return &Transformer{client: client, opts: opts}
}

// Process fetches rawURL and returns both resized variants. The image is
// fetched and decoded once; the two variants are independent resize+encode
// passes over the same decoded pixels.
func (t *Transformer) Process(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrBadURL
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.FetchTimeout)
	defer cancel()

	data, err := t.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrCorrupt
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, ErrCorrupt
	}

	thumb, err := t.encodeVariant(src, width, height, t.opts.ThumbEdge)
	if err != nil {
		return nil, ErrCorrupt
	}
	full, err := t.encodeVariant(src, width, height, t.opts.FullEdge)
	if err != nil {
		return nil, ErrCorrupt
	}

	return &Result{Full: full, Thumb: thumb, Width: width, Height: height}, nil
}

func (t *Transformer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ErrBadURL
	}
	if t.opts.UserAgent != "" {
		req.Header.Set("User-Agent", t.opts.UserAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return nil, ErrNotAnImage
	}

	// Declared length check fails fast; the read below still caps the body
	// in case the header is missing or lying.
	if resp.ContentLength > t.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.opts.MaxBytes+1))
	if err != nil {
		return nil, classifyNetErr(err)
	}
	if int64(len(data)) > t.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrCorrupt
	}

	return data, nil
}

// encodeVariant scales src so its longest edge is at most maxEdge (never
// upscaling) and re-encodes it as JPEG.
func (t *Transformer) encodeVariant(src image.Image, width, height, maxEdge int) ([]byte, error) {
	targetW, targetH := fitEdge(width, height, maxEdge)

	var out image.Image = src
	if targetW != width || targetH != height {
		dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: t.opts.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitEdge returns dimensions with the longest edge capped at maxEdge,
// preserving aspect ratio. Images already within the cap keep their size.
func fitEdge(width, height, maxEdge int) (int, int) {
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxEdge {
		return width, height
	}

	scale := float64(maxEdge) / float64(longest)
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func classifyNetErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}
