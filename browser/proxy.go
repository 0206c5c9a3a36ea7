package browser

import "strings"

var proxyErrorMarkers = []string{
	"proxy authentication required",
	"tunnel connection failed",
	"err_tunnel_connection_failed",
	"err_proxy_connection_failed",
	"err_proxy_certificate_invalid",
	"proxy error",
	"error code: 407",
	"407 proxy",
	"bad gateway",
}

// DetectProxyError returns the first proxy failure marker found in the page
// title or text, if any.
func DetectProxyError(title, text string) (string, bool) {
	haystack := strings.ToLower(title + "\n" + text)
	for _, m := range proxyErrorMarkers {
		if strings.Contains(haystack, m) {
			return m, true
		}
	}
	return "", false
}
