package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"fsbo_scrooper/config"
)

type Clients struct {
	Proxied *http.Client // through the scraping proxy, for probes against the target site
	API     *http.Client // direct, for the solving service
}

func NewClients(proxyCfg config.ProxyConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if raw := proxyCfg.URL(); raw != "" {
		if proxyURL, err := url.Parse(raw); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	proxied := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Proxied: proxied,
		API:     &http.Client{Timeout: 30 * time.Second},
	}
}

// ErrProxyAuth means the proxy rejected our credentials.
var ErrProxyAuth = errors.New("proxy authentication required")

// ProbeProxy fetches target through the proxied client and reports whether
// the proxy let the request through.
func (c *Clients) ProbeProxy(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.Proxied.Do(req)
	if err != nil {
		return fmt.Errorf("proxy probe: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusProxyAuthRequired {
		return ErrProxyAuth
	}
	return nil
}
