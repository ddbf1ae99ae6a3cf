// internal/parser/extract.go
package parser

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/kljensen/snowball/english"
)

const (
	NoTitle                  = "No title"
	DefaultDescriptionLength = 200
)

// PageRecord is what the index receives for one fetched page.
type PageRecord struct {
	URL         string
	Title       string
	Description string
	Tokens      []string
}

// Consumer turns a parsed page into a PageRecord. Missing metadata degrades
// to defaults; it is never an error.
type Consumer interface {
	Consume(doc *goquery.Document, pageURL string) PageRecord
}

// TextConsumer is the default Consumer: lowercase alphabetic words, English
// stop words removed, Porter2 stemmed.
type TextConsumer struct {
	DescriptionLength int
	Stopwords         map[string]struct{}
}

func NewTextConsumer(descLen int) *TextConsumer {
	if descLen <= 0 {
		descLen = DefaultDescriptionLength
	}
	return &TextConsumer{
		DescriptionLength: descLen,
		Stopwords:         DefaultStopwords(),
	}
}

func (c *TextConsumer) Consume(doc *goquery.Document, pageURL string) PageRecord {
	rec := PageRecord{URL: pageURL, Title: NoTitle}
	if doc == nil {
		return rec
	}

	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		rec.Title = t
	}

	text := VisibleText(doc)
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		rec.Description = content
	} else {
		rec.Description = truncate(text, c.DescriptionLength)
	}

	rec.Tokens = c.Tokenize(text)
	return rec
}

// Tokenize lowercases s, keeps alphabetic runs, drops stop words and stems
// the rest.
func (c *TextConsumer) Tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) })
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := c.Stopwords[w]; stop {
			continue
		}
		if st := english.Stem(w, false); st != "" {
			tokens = append(tokens, st)
		}
	}
	return tokens
}

// truncate cuts s to n runes and marks the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// DefaultStopwords returns the usual English stop word set.
func DefaultStopwords() map[string]struct{} {
	ws := []string{
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves",
		"you", "your", "yours", "yourself", "yourselves",
		"he", "him", "his", "himself", "she", "her", "hers", "herself",
		"it", "its", "itself", "they", "them", "their", "theirs", "themselves",
		"what", "which", "who", "whom", "this", "that", "these", "those",
		"am", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "having", "do", "does", "did", "doing",
		"a", "an", "the", "and", "but", "if", "or", "because", "as", "until", "while",
		"of", "at", "by", "for", "with", "about", "against", "between", "into",
		"through", "during", "before", "after", "above", "below", "to", "from",
		"up", "down", "in", "out", "on", "off", "over", "under",
		"again", "further", "then", "once", "here", "there", "when", "where", "why", "how",
		"all", "any", "both", "each", "few", "more", "most", "other", "some", "such",
		"no", "nor", "not", "only", "own", "same", "so", "than", "too", "very",
		"s", "t", "can", "will", "just", "don", "should", "now",
		"d", "ll", "m", "o", "re", "ve", "y",
		"ain", "aren", "couldn", "didn", "doesn", "hadn", "hasn", "haven", "isn",
		"ma", "mightn", "mustn", "needn", "shan", "shouldn", "wasn", "weren", "won", "wouldn",
	}
	m := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		m[w] = struct{}{}
	}
	return m
}
