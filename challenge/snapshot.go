package challenge

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is a read-only view of the page at one instant.
type Snapshot interface {
	Title() string
	BodyText() string
	// Count returns how many elements match selector. Invalid selectors count zero.
	Count(selector string) int
}

// DocumentSnapshot answers snapshot queries from parsed HTML.
type DocumentSnapshot struct {
	doc   *goquery.Document
	title string
	body  string
}

// NewDocumentSnapshot parses html. An empty title falls back to the
// document's <title>; an empty bodyText falls back to the text of <body>
// with scripts and styles removed.
func NewDocumentSnapshot(html, title, bodyText string) (*DocumentSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot html: %w", err)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if bodyText == "" {
		body := doc.Find("body").Clone()
		body.Find("script, style, noscript").Remove()
		bodyText = collapseSpace(body.Text())
	}
	return &DocumentSnapshot{doc: doc, title: title, body: bodyText}, nil
}

func (s *DocumentSnapshot) Title() string    { return s.title }
func (s *DocumentSnapshot) BodyText() string { return s.body }

func (s *DocumentSnapshot) Count(selector string) int {
	return s.doc.Find(selector).Length()
}

// Document exposes the parsed tree for callers that extract data from the same capture.
func (s *DocumentSnapshot) Document() *goquery.Document { return s.doc }

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
