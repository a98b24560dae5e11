package utils

import (
	"net/http/httptest"
	"testing"
)

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.168.1.10 ", "::1", "garbage", ""})

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"11.0.0.1", false},
		{"192.168.1.10", true},
		{"192.168.1.11", false},
		{"::1", true},
		{"::ffff:10.0.0.1", true},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.Allow(tt.ip); got != tt.want {
			t.Errorf("Allow(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}

	if m.IsEmpty() {
		t.Errorf("IsEmpty() = true, want false")
	}
	if !NewIPMatcher(nil).IsEmpty() {
		t.Errorf("NewIPMatcher(nil).IsEmpty() = false, want true")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "1.2.3.4:5555", nil, false, "1.2.3.4"},
		{"proxy headers ignored when untrusted", "1.2.3.4:5555", map[string]string{"X-Forwarded-For": "9.9.9.9"}, false, "1.2.3.4"},
		{"cloudflare header first", "127.0.0.1:1", map[string]string{"CF-Connecting-IP": "5.5.5.5", "X-Forwarded-For": "9.9.9.9"}, true, "5.5.5.5"},
		{"left-most forwarded for", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "9.9.9.9, 8.8.8.8"}, true, "9.9.9.9"},
		{"real ip", "127.0.0.1:1", map[string]string{"X-Real-IP": "7.7.7.7"}, true, "7.7.7.7"},
		{"no headers falls back", "[::1]:80", nil, true, "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
