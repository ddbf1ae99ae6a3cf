package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var noindexMarker = []byte("noindex")

// Parse builds a queryable document from a fetched body.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// HasNoindex reports whether the raw body mentions "noindex" anywhere,
// case-insensitively. This is a substring scan, not a meta tag parse.
func HasNoindex(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), noindexMarker)
}

// Anchors returns the raw href of every <a href> in document order.
func Anchors(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	sel := doc.Find("a[href]")
	hrefs := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// skipText lists elements whose text never reaches the index.
var skipText = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// VisibleText joins the trimmed text nodes of doc with single spaces.
func VisibleText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	parts := make([]string, 0, 64)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skipText[strings.ToLower(n.Data)]; skip {
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, strings.Join(strings.Fields(t), " "))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
