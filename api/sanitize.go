package api

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"fsbo_scrooper/models"
)

var tagRegex = regexp.MustCompile(`<[^>]*>`)

const maxErrorLen = 500

// sanitizeText strips markup and bounds the length of text that may have
// come from a page.
func sanitizeText(s string) string {
	if strings.ContainsAny(s, "<>") {
		s = tagRegex.ReplaceAllString(s, " ")
		s = strings.NewReplacer("<", "", ">", "").Replace(s)
		s = strings.Join(strings.Fields(s), " ")
	}
	if len(s) > maxErrorLen {
		n := maxErrorLen
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	return s
}

// Sanitize returns a copy of res with no markup in any text field.
func Sanitize(res *models.ScrapeResult) *models.ScrapeResult {
	if res == nil {
		return nil
	}
	out := *res
	out.Error = sanitizeText(res.Error)
	out.Listings = make([]models.Listing, len(res.Listings))
	for i, l := range res.Listings {
		l.Address = sanitizeText(l.Address)
		l.Price = sanitizeText(l.Price)
		l.Details = sanitizeText(l.Details)
		out.Listings[i] = l
	}
	if res.Bypass != nil {
		b := *res.Bypass
		b.Attempts = make([]models.BypassAttempt, len(res.Bypass.Attempts))
		for i, a := range res.Bypass.Attempts {
			a.Detail = sanitizeText(a.Detail)
			a.Error = sanitizeText(a.Error)
			b.Attempts[i] = a
		}
		out.Bypass = &b
	}
	return &out
}
