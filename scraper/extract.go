package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"fsbo_scrooper/config"
	"fsbo_scrooper/identity"
	"fsbo_scrooper/models"
)

var (
	bedsRegex  = regexp.MustCompile(`(?i)([\d.]+)\s*(?:bds?|beds?|bedrooms?)\b`)
	bathsRegex = regexp.MustCompile(`(?i)([\d.]+)\s*(?:ba|baths?|bathrooms?)\b`)
	sqftRegex  = regexp.MustCompile(`(?i)([\d,]+)\s*(?:sqft|sq\.?\s*ft)`)
	spaceRegex = regexp.MustCompile(`\s+`)
)

// ExtractListings reads property cards from a results page, trying each
// selector list in order, and drops repeated cards.
func ExtractListings(doc *goquery.Document, sel config.ListingSelectors, baseURL string) []models.Listing {
	var cards *goquery.Selection
	for _, s := range sel.Cards {
		if found := doc.Find(s); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil
	}

	var listings []models.Listing
	cards.Each(func(_ int, card *goquery.Selection) {
		l := models.Listing{
			Address: firstText(card, sel.Address),
			Price:   firstText(card, sel.Price),
			Details: firstList(card, sel.Details),
			Link:    absoluteLink(firstAttr(card, sel.Link, "href"), baseURL),
		}
		if l.Address == "" && l.Link == "" {
			return
		}
		l.PriceValue = digits(l.Price)
		l.Beds = int(firstNumber(bedsRegex, l.Details))
		l.Baths = int(firstNumber(bathsRegex, l.Details))
		l.SqFt = digits(firstMatch(sqftRegex, l.Details))
		l.FSBO = strings.Contains(strings.ToLower(card.Text()), "by owner")
		listings = append(listings, l)
	})

	return identity.Dedupe(listings)
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if found := card.Find(s).First(); found.Length() > 0 {
			if text := clean(found.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstList is firstText for list-shaped blocks, keeping items apart.
func firstList(card *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		found := card.Find(s).First()
		if found.Length() == 0 {
			continue
		}
		var items []string
		found.Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := clean(li.Text()); t != "" {
				items = append(items, t)
			}
		})
		if len(items) > 0 {
			return strings.Join(items, ", ")
		}
		if text := clean(found.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(card *goquery.Selection, selectors []string, attr string) string {
	for _, s := range selectors {
		if v, ok := card.Find(s).First().Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

func absoluteLink(href, base string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() || base == "" {
		return u.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(u).String()
}

func clean(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

func digits(s string) int {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	n, _ := strconv.Atoi(b.String())
	return n
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func firstNumber(re *regexp.Regexp, s string) float64 {
	f, _ := strconv.ParseFloat(firstMatch(re, s), 64)
	return f
}
