package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const maxPageBytes = 1 << 20 // 1 MB of HTML is plenty for <head>

// pageMetadata holds what the scraper pulled out of a page's head.
type pageMetadata struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
	FaviconURL  string
}

func (m *pageMetadata) empty() bool {
	return m.Title == "" && m.Description == "" && m.ImageURL == ""
}

// fetchMetadata performs an HTTP GET and parses OG meta tags out of the
// response. A non-HTML response yields empty metadata, not an error.
func fetchMetadata(ctx context.Context, client *http.Client, pageURL, userAgent string) (*pageMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		return &pageMetadata{}, nil
	}

	meta := parseMetadata(io.LimitReader(resp.Body, maxPageBytes))
	resolveRelative(meta, pageURL)
	return meta, nil
}

// parseMetadata extracts og:* meta tags, falling back to <title> and
// <meta name="description">, and picks up a <link rel="icon"> if present.
func parseMetadata(r io.Reader) *pageMetadata {
	tokenizer := html.NewTokenizer(r)
	meta := &pageMetadata{}
	var fallbackTitle string
	var fallbackDesc string

	done := func() *pageMetadata {
		if meta.Title == "" {
			meta.Title = fallbackTitle
		}
		if meta.Description == "" {
			meta.Description = fallbackDesc
		}
		return meta
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return done()

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tag := string(tn)

			if tag == "body" {
				// Stop parsing at <body>.
				return done()
			}

			if tag == "title" && fallbackTitle == "" {
				if tokenizer.Next() == html.TextToken {
					fallbackTitle = strings.TrimSpace(string(tokenizer.Text()))
				}
				continue
			}

			if !hasAttr {
				continue
			}

			switch tag {
			case "meta":
				attrs := readAttrs(tokenizer)
				content := attrs["content"]

				switch attrs["property"] {
				case "og:title":
					meta.Title = content
				case "og:description":
					meta.Description = content
				case "og:image":
					meta.ImageURL = content
				case "og:site_name":
					meta.SiteName = content
				}

				if attrs["name"] == "description" && fallbackDesc == "" {
					fallbackDesc = content
				}

			case "link":
				attrs := readAttrs(tokenizer)
				rel := strings.ToLower(attrs["rel"])
				if (rel == "icon" || rel == "shortcut icon") && meta.FaviconURL == "" {
					meta.FaviconURL = attrs["href"]
				}
			}
		}
	}
}

// resolveRelative rewrites relative image/favicon URLs against the page URL.
func resolveRelative(meta *pageMetadata, pageURL string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	if meta.ImageURL != "" {
		if ref, err := url.Parse(meta.ImageURL); err == nil {
			meta.ImageURL = base.ResolveReference(ref).String()
		}
	}
	if meta.FaviconURL != "" {
		if ref, err := url.Parse(meta.FaviconURL); err == nil {
			meta.FaviconURL = base.ResolveReference(ref).String()
		}
	}
}

// readAttrs collects all attributes from the current tag token.
func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		key, val, more := z.TagAttr()
		k := string(key)
		if k != "" {
			attrs[k] = string(val)
		}
		if !more {
			break
		}
	}
	return attrs
}
