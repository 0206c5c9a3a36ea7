package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"fsbo_scrooper/models"
)

var (
	streetReplacements = map[string]string{
		"street":    "st",
		"avenue":    "ave",
		"drive":     "dr",
		"road":      "rd",
		"boulevard": "blvd",
		"lane":      "ln",
		"court":     "ct",
		"place":     "pl",
		"circle":    "cir",
		"terrace":   "ter",
		"highway":   "hwy",
		"parkway":   "pkwy",
		"square":    "sq",
		"north":     "n",
		"south":     "s",
		"east":      "e",
		"west":      "w",
		"northeast": "ne",
		"northwest": "nw",
		"southeast": "se",
		"southwest": "sw",
		"apartment": "apt",
		"suite":     "ste",
		"floor":     "fl",
		"building":  "bldg",
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
	zpidRegex       = regexp.MustCompile(`(\d+)_zpid`)
)

// Fingerprint identifies a listing card across page loads and URL variants.
// The property id in the link wins; otherwise the normalized address is used.
func Fingerprint(l *models.Listing) string {
	key := ListingKey(l.Link)
	if key == "" {
		key = "addr:" + NormalizeAddress(l.Address)
	}
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}

// ListingKey extracts a stable key from a listing link: the zpid when
// present, else the path without host or query.
func ListingKey(link string) string {
	if link == "" {
		return ""
	}
	if m := zpidRegex.FindStringSubmatch(link); m != nil {
		return "zpid:" + m[1]
	}
	u, err := url.Parse(link)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return "path:" + strings.TrimSuffix(strings.ToLower(u.Path), "/")
}

// NormalizeAddress lowercases, strips punctuation and abbreviates street words.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	addr = nonAlnumRegex.ReplaceAllString(addr, " ")
	words := strings.Fields(multiSpaceRegex.ReplaceAllString(addr, " "))
	for i, w := range words {
		if abbrev, ok := streetReplacements[w]; ok {
			words[i] = abbrev
		}
	}
	return strings.Join(words, " ")
}

// Dedupe fills in fingerprints and drops repeats, keeping first occurrences.
func Dedupe(listings []models.Listing) []models.Listing {
	seen := make(map[string]bool, len(listings))
	out := listings[:0]
	for _, l := range listings {
		if l.Fingerprint == "" {
			l.Fingerprint = Fingerprint(&l)
		}
		if seen[l.Fingerprint] {
			continue
		}
		seen[l.Fingerprint] = true
		out = append(out, l)
	}
	return out
}
