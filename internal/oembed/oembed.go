// Package oembed recognizes provider-hosted URLs (Instagram, Facebook,
// Threads) and fetches their embed fragments from the provider's oEmbed
// endpoint, bypassing generic page scraping.
package oembed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUpstream = errors.New("oembed endpoint failed")

const maxResponseSize = 1 << 20 // 1 MB

// Provider names, matching the cache's provider column.
const (
	ProviderInstagram = "instagram"
	ProviderFacebook  = "facebook"
	ProviderThreads   = "threads"
)

// endpoints maps a provider to its oEmbed endpoint. The target URL is
// appended as the url query parameter.
var endpoints = map[string]string{
	ProviderInstagram: "https://api.instagram.com/oembed",
	ProviderFacebook:  "https://www.facebook.com/plugins/post/oembed.json/",
	ProviderThreads:   "https://www.threads.net/oembed",
}

// hostProviders maps bare hostnames (www stripped) to providers.
var hostProviders = map[string]string{
	"instagram.com": ProviderInstagram,
	"facebook.com":  ProviderFacebook,
	"fb.watch":      ProviderFacebook,
	"threads.net":   ProviderThreads,
	"threads.com":   ProviderThreads,
}

// ProviderFor returns the oEmbed provider for a URL, if any.
func ProviderFor(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	p, ok := hostProviders[host]
	return p, ok
}

// Embed is a provider embed fragment plus its metadata.
type Embed struct {
	Provider        string
	HTML            string
	AuthorName      string
	ThumbnailURL    string
	ThumbnailWidth  int
	ThumbnailHeight int
	Width           int
}

// Client fetches embed fragments from provider endpoints.
type Client struct {
	client    *http.Client
	userAgent string
}

func NewClient(client *http.Client, userAgent string) *Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{client: client, userAgent: userAgent}
}

type payload struct {
	HTML            string `json:"html"`
	AuthorName      string `json:"author_name"`
	ThumbnailURL    string `json:"thumbnail_url"`
	ThumbnailWidth  int    `json:"thumbnail_width"`
	ThumbnailHeight int    `json:"thumbnail_height"`
	Width           int    `json:"width"`
}

// Fetch retrieves the embed fragment for targetURL from the provider's
// endpoint.
func (c *Client) Fetch(ctx context.Context, provider, targetURL string) (*Embed, error) {
	endpoint, ok := endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("unknown oembed provider %q", provider)
	}

	reqURL := endpoint + "?omitscript=true&url=" + url.QueryEscape(targetURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	var p payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	if p.HTML == "" {
		return nil, fmt.Errorf("%w: empty embed html", ErrUpstream)
	}

	return &Embed{
		Provider:        provider,
		HTML:            p.HTML,
		AuthorName:      p.AuthorName,
		ThumbnailURL:    p.ThumbnailURL,
		ThumbnailWidth:  p.ThumbnailWidth,
		ThumbnailHeight: p.ThumbnailHeight,
		Width:           p.Width,
	}, nil
}

// SetEndpoint overrides a provider endpoint. Tests point providers at a
// local httptest server.
func SetEndpoint(provider, endpoint string) (restore func()) {
	prev := endpoints[provider]
	endpoints[provider] = endpoint
	return func() { endpoints[provider] = prev }
}
