package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		name     string
		latest   string
		current  string
		expected bool
	}{
		{"same version", "0.1.0", "0.1.0", false},
		{"patch upgrade", "0.1.1", "0.1.0", true},
		{"patch downgrade", "0.0.9", "0.1.0", false},
		{"minor upgrade", "0.2.0", "0.1.9", true},
		{"major upgrade", "1.0.0", "0.9.9", true},
		{"multi-digit patch", "0.0.100", "0.0.99", true},
		{"different lengths", "1.0", "0.9.28", true},
		{"shorter current", "0.1.1", "0.1", true},
		{"pre-release same base", "0.1.0-alpha", "0.1.0", false},
		{"build metadata", "0.1.1+build7", "0.1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isNewerVersion(tt.latest, tt.current)
			if result != tt.expected {
				t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, result, tt.expected)
			}
		})
	}
}

func TestChecker_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "swarmcli/0.1.0" {
			t.Errorf("Unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"tag_name":"v0.2.0","html_url":"https://example.com/v0.2.0"}`))
	}))
	defer server.Close()

	checker := &Checker{URL: server.URL, Client: server.Client()}

	update, err := checker.Check(context.Background(), "v0.1.0")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !update.Available || update.Latest != "0.2.0" || update.URL != "https://example.com/v0.2.0" {
		t.Errorf("Unexpected update: %+v", update)
	}

	update, err = checker.Check(context.Background(), "0.2.0")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if update.Available {
		t.Error("Expected no update for the same version")
	}
}

func TestChecker_CheckBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	checker := &Checker{URL: server.URL, Client: server.Client()}
	if _, err := checker.Check(context.Background(), "0.1.0"); err == nil {
		t.Error("Expected error for non-200 status")
	}
}
