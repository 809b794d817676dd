package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the running build, overridden at link time with -ldflags
var Version = "0.1.0"

const (
	releaseURL   = "https://api.github.com/repos/studiowebux/swarmcli/releases/latest"
	checkTimeout = 5 * time.Second
)

// Release is the subset of a GitHub release the checker reads
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// Update is the outcome of a release check
type Update struct {
	Available bool
	Latest    string
	URL       string
}

// Checker queries the latest published release
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker returns a checker for the public release feed
func NewChecker() *Checker {
	return &Checker{
		URL:    releaseURL,
		Client: &http.Client{Timeout: checkTimeout},
	}
}

// Check reports whether a release newer than current is published
func (c *Checker) Check(ctx context.Context, current string) (*Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "swarmcli/"+current)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current = strings.TrimPrefix(current, "v")

	return &Update{
		Available: latest != "" && isNewerVersion(latest, current),
		Latest:    latest,
		URL:       release.HTMLURL,
	}, nil
}

// isNewerVersion compares two semantic versions and returns true if latest > current
// Supports versions like "0.0.28", "1.2.3", "0.0.29-dev", etc.
func isNewerVersion(latest, current string) bool {
	latestParts := parseVersion(latest)
	currentParts := parseVersion(current)

	n := max(len(latestParts), len(currentParts))
	for i := 0; i < n; i++ {
		l, c := part(latestParts, i), part(currentParts, i)
		if l != c {
			return l > c
		}
	}
	return false
}

// part returns the i-th version component, zero when missing
func part(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

// parseVersion parses a version string into integer parts
// Handles pre-release versions by stripping everything after "-" or "+"
func parseVersion(version string) []int {
	if idx := strings.IndexAny(version, "-+"); idx != -1 {
		version = version[:idx]
	}

	parts := strings.Split(version, ".")
	result := make([]int, 0, len(parts))

	for _, p := range parts {
		num, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		result = append(result, num)
	}

	return result
}
