package message

import (
	"regexp"
	"strings"
)

// bracketLinkPattern matches <url|label> markup from the rich text editor.
var bracketLinkPattern = regexp.MustCompile(`<(https?://[^|>]+)\|[^>]*>`)

// urlPattern matches http(s) URLs in message text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

// ExtractURLs returns the distinct external URLs in content, in order of
// first appearance. Internal API paths are skipped; trailing punctuation
// that is not part of URLs is stripped.
func ExtractURLs(content string) []string {
	var urls []string
	seen := make(map[string]struct{})

	add := func(u string) {
		u = strings.TrimRight(u, ".,;:!?")
		if u == "" || strings.Contains(u, "/api/") {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, m := range bracketLinkPattern.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	// Strip bracket links before plain matching so their URLs are not
	// picked up twice with the trailing "|label>" garbage attached.
	remainder := bracketLinkPattern.ReplaceAllString(content, " ")
	for _, u := range urlPattern.FindAllString(remainder, -1) {
		add(u)
	}

	return urls
}
