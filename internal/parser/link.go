// internal/parser/link.go
package parser

import (
	"net/url"
	"strings"
)

// ResolveLink converts a raw <a href="…"> into an absolute URL string.
// It returns "" if the link should be ignored.
//
//	//host/path  -> https://host/path
//	/path        -> scheme://host/path of base
//	#frag, mailto:, relative paths -> ""
func ResolveLink(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}

	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case strings.HasPrefix(raw, "/"):
		bu, err := url.Parse(base)
		if err != nil || bu.Scheme == "" || bu.Host == "" {
			return ""
		}
		raw = bu.Scheme + "://" + bu.Host + raw
	case !strings.HasPrefix(raw, "http"):
		return ""
	}

	// drop #section
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// ExtractLinks normalizes every href against base. The result may contain
// duplicates; the visited registry sorts those out.
func ExtractLinks(hrefs []string, base string) []string {
	links := make([]string, 0, len(hrefs))
	for _, h := range hrefs {
		if abs := ResolveLink(base, h); abs != "" {
			links = append(links, abs)
		}
	}
	return links
}
