package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestRealIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		trusted []netip.Prefix
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{name: "no trusted proxies", remote: "203.0.113.7:1", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "untrusted peer", trusted: trusted, remote: "203.0.113.7:1", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted peer", trusted: trusted, remote: "10.0.0.2:1", xff: "198.51.100.1", want: "198.51.100.1"},
		{name: "rightmost untrusted hop", trusted: trusted, remote: "10.0.0.2:1", xff: "1.1.1.1, 198.51.100.1, 10.0.0.5", want: "198.51.100.1"},
		{name: "garbage hop stops walk", trusted: trusted, remote: "10.0.0.2:1", xff: "198.51.100.1, bogus, 10.0.0.5", want: "10.0.0.5"},
		{name: "x-real-ip", trusted: trusted, remote: "10.0.0.2:1", realIP: "198.51.100.9", want: "198.51.100.9"},
		{name: "no headers", trusted: trusted, remote: "10.0.0.2:1", want: "10.0.0.2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := RealIP(tc.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIdentityKeyIgnoresSpoofedForwardedFor(t *testing.T) {
	keys := map[string]bool{}
	h := RealIP([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})(Identity(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		keys[id.Key] = true
	})))

	for _, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3, 4.4.4.4", "5.5.5.5", "2001:db8::1"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if len(keys) != 1 || !keys["ip:203.0.113.7"] {
		t.Fatalf("identity keys = %v, want only ip:203.0.113.7", keys)
	}
}
