package util

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func proxyFor(t *testing.T, fn func(*http.Request) (*url.URL, error), target string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	u, err := fn(req)
	if err != nil {
		t.Fatalf("Proxy func failed for %s: %v", target, err)
	}
	if u == nil {
		return ""
	}
	return u.String()
}

func TestNewProxyFunc_ExplicitProxies(t *testing.T) {
	fn := NewProxyFunc("http://proxy:3128", "http://secure-proxy:3128", "")

	if got := proxyFor(t, fn, "http://api.example.com/v1"); got != "http://proxy:3128" {
		t.Errorf("HTTP request proxied via %q", got)
	}
	if got := proxyFor(t, fn, "https://api.example.com/v1"); got != "http://secure-proxy:3128" {
		t.Errorf("HTTPS request proxied via %q", got)
	}
}

func TestNewProxyFunc_HTTPProxyCoversHTTPS(t *testing.T) {
	fn := NewProxyFunc("http://proxy:3128", "", "")
	if got := proxyFor(t, fn, "https://api.example.com/v1"); got != "http://proxy:3128" {
		t.Errorf("HTTPS should fall back to the HTTP proxy, got %q", got)
	}
}

func TestNewProxyFunc_NoProxyExemptions(t *testing.T) {
	fn := NewProxyFunc("http://proxy:3128", "", "localhost, internal.example.com")

	if got := proxyFor(t, fn, "http://localhost:11434/api/generate"); got != "" {
		t.Errorf("localhost should bypass the proxy, got %q", got)
	}
	if got := proxyFor(t, fn, "http://svc.internal.example.com/"); got != "" {
		t.Errorf("Subdomain of exempt host should bypass the proxy, got %q", got)
	}
	if got := proxyFor(t, fn, "http://external.example.org/"); got != "http://proxy:3128" {
		t.Errorf("Non-exempt host should use the proxy, got %q", got)
	}
}
