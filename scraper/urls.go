package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"fsbo_scrooper/config"
)

var zipRegex = regexp.MustCompile(`^\d{5}$`)

// ValidZip accepts five-digit US ZIP codes.
func ValidZip(zip string) bool {
	return zipRegex.MatchString(zip)
}

// BuildURL fills the first template for urlType with zip. Unknown types fall
// back to the site default. It returns the resolved type alongside the URL.
func BuildURL(site *config.SiteConfig, zip, urlType string) (string, string, error) {
	if !ValidZip(zip) {
		return "", "", fmt.Errorf("invalid zip code %q", zip)
	}
	templates, ok := site.URLTemplates[urlType]
	if !ok || len(templates) == 0 {
		urlType = site.DefaultURLType
		templates = site.URLTemplates[urlType]
	}
	if len(templates) == 0 {
		return "", "", fmt.Errorf("site %s has no url template for %q", site.ID, urlType)
	}
	return strings.ReplaceAll(templates[0], "{zip}", zip), urlType, nil
}
