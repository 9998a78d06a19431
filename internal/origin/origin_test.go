package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		raw        string
		normalized string
		host       string
	}{
		{"HTTPS://Example.COM:443", "https://example.com", "example.com"},
		{"http://localhost:5173/", "http://localhost:5173", "localhost:5173"},
		{"http://example.com:80", "http://example.com", "example.com"},
		{"https://example.com:80", "https://example.com:80", "example.com:80"},
		{"http://[::1]:3000", "http://[::1]:3000", "[::1]:3000"},
		{"null", "null", ""},
	}
	for _, tc := range cases {
		normalized, host, ok := NormalizeHeader(tc.raw)
		if !ok {
			t.Fatalf("NormalizeHeader(%q) ok=false", tc.raw)
		}
		if normalized != tc.normalized || host != tc.host {
			t.Fatalf("NormalizeHeader(%q)=(%q,%q), want (%q,%q)", tc.raw, normalized, host, tc.normalized, tc.host)
		}
	}
}

func TestNormalizeHeader_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://example.com?",
		"https://user@example.com",
		"https://example.com/#frag",
		"https://example.com:0",
		"https://example.com:99999",
		"http://::1",
		"http://[::1",
	} {
		if _, _, ok := NormalizeHeader(raw); ok {
			t.Fatalf("expected ok=false for %q", raw)
		}
	}
}

func TestIsAllowed(t *testing.T) {
	t.Run("default is same host:port only", func(t *testing.T) {
		normalized, host, _ := NormalizeHeader("https://app.example.com")
		if !IsAllowed(normalized, host, "app.example.com", nil) {
			t.Fatalf("expected same-host to be allowed")
		}
		if !IsAllowed(normalized, host, "APP.example.com:443", nil) {
			t.Fatalf("expected default port and case to be equivalent")
		}
		if IsAllowed(normalized, host, "app.example.com:8443", nil) {
			t.Fatalf("expected different port to be rejected")
		}
		if IsAllowed(normalized, host, "other.example.com", nil) {
			t.Fatalf("expected different host to be rejected")
		}
	})

	t.Run("allow-list", func(t *testing.T) {
		normalized, host, _ := NormalizeHeader("https://app.example.com")
		if !IsAllowed(normalized, host, "whatever:1234", []string{"*"}) {
			t.Fatalf("expected * to allow any origin")
		}
		if !IsAllowed(normalized, host, "relay.example.com", []string{"https://app.example.com"}) {
			t.Fatalf("expected explicit origin to be allowed")
		}
		if IsAllowed(normalized, host, "app.example.com", []string{"https://other.example.com"}) {
			t.Fatalf("expected allow-list to replace the same-host default")
		}
	})

	t.Run("null origin only when configured", func(t *testing.T) {
		if IsAllowed("null", "", "relay.example.com", nil) {
			t.Fatalf("expected null origin to be rejected by default")
		}
		if !IsAllowed("null", "", "relay.example.com", []string{"null"}) {
			t.Fatalf("expected null origin to be allowed when configured")
		}
	})
}

func TestCheck(t *testing.T) {
	req := httptest.NewRequest("GET", "http://relay.example.com/ws", nil)
	if !Check(req, nil) {
		t.Fatalf("expected request without Origin to be allowed")
	}

	req.Header.Set("Origin", "http://relay.example.com")
	if !Check(req, nil) {
		t.Fatalf("expected same-host Origin to be allowed")
	}

	req.Header.Set("Origin", "https://evil.example.com")
	if Check(req, nil) {
		t.Fatalf("expected cross-origin request to be rejected")
	}
	if !Check(req, []string{"https://evil.example.com"}) {
		t.Fatalf("expected allow-listed origin to be allowed")
	}

	req.Header.Set("Origin", "not a url")
	if Check(req, []string{"*"}) {
		t.Fatalf("expected malformed Origin to be rejected even with *")
	}
}
