package utils

import (
	"errors"
	"net/http"
	"testing"
)

func TestExtractOrigin(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   string
	}{
		{name: "empty string", rawURL: "", want: ""},
		{name: "path is dropped", rawURL: "http://example.com/path/to/resource", want: "http://example.com"},
		{name: "port is kept", rawURL: "https://example.com:8080/api", want: "https://example.com:8080"},
		{name: "no scheme", rawURL: "example.com/path", want: "example.com/path"},
		{name: "malformed", rawURL: "ht tp://example.com", want: "ht tp://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractOrigin(tt.rawURL); got != tt.want {
				t.Errorf("ExtractOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRealIPExtractor(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		remoteAddr    string
		trustedRanges []string
		want          string
	}{
		{
			name:          "X-Forwarded-For behind trusted proxy",
			headers:       map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr:    "192.168.1.1",
			trustedRanges: []string{"192.168.1.0/24"},
			want:          "203.0.113.1",
		},
		{
			name:          "no X-Forwarded-For uses RemoteAddr",
			headers:       map[string]string{},
			remoteAddr:    "203.0.113.1",
			trustedRanges: []string{"192.168.1.0/24"},
			want:          "203.0.113.1",
		},
		{
			name:          "untrusted peer wins over forwarded address",
			headers:       map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr:    "192.168.1.1",
			trustedRanges: []string{"10.0.0.0/8"},
			want:          "192.168.1.1",
		},
		{
			name:          "mixed chain returns rightmost untrusted",
			headers:       map[string]string{"X-Forwarded-For": "203.0.113.100, 8.8.8.8, 192.168.1.50, 10.0.0.25"},
			remoteAddr:    "192.168.1.1",
			trustedRanges: []string{"192.168.1.0/24", "10.0.0.0/8"},
			want:          "8.8.8.8",
		},
		{
			name:          "IPv6 RemoteAddr",
			headers:       map[string]string{},
			remoteAddr:    "[2001:db8::1]",
			trustedRanges: []string{"192.168.1.0/24"},
			want:          "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			realIP, err := NewRealIPExtractor(tt.trustedRanges)
			if err != nil {
				t.Fatalf("failed to create realIPExtractor: %v", err)
			}

			req := &http.Request{
				Header:     make(http.Header),
				RemoteAddr: tt.remoteAddr,
			}
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if result := realIP.Extract(req); result != tt.want {
				t.Errorf("realIP.Extract() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestCallWithRecovery(t *testing.T) {
	err := CallWithRecovery(func() error { panic("boom") })
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if panicErr.Value != "boom" {
		t.Errorf("unexpected panic value %v", panicErr.Value)
	}

	want := errors.New("plain")
	if err := CallWithRecovery(func() error { return want }); err != want {
		t.Errorf("expected %v, got %v", want, err)
	}
}
