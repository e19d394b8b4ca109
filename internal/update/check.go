// Package update looks up the latest published release of argus.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Repo is the GitHub repository releases are published to.
const Repo = "cagmero/ARGUS"

// ErrNoRelease is returned when the repository has no published release.
var ErrNoRelease = errors.New("no release published")

// Release is the outcome of a version check.
type Release struct {
	Latest  string `json:"latest"`
	Current string `json:"current"`
	Install string `json:"install"`
}

// Newer reports whether Latest is a higher version than Current. Development
// builds are never considered outdated.
func (r Release) Newer() bool {
	if r.Current == "dev" {
		return false
	}
	return compareVersions(r.Latest, r.Current) > 0
}

// Checker queries the GitHub releases API.
type Checker struct {
	BaseURL string
	Client  *http.Client
}

// NewChecker returns a checker for api.github.com with a short timeout.
func NewChecker() *Checker {
	return &Checker{BaseURL: "https://api.github.com", Client: &http.Client{Timeout: 3 * time.Second}}
}

// Latest fetches the latest release of repo and compares it with current.
func (c *Checker) Latest(ctx context.Context, repo, current string) (Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimSuffix(c.BaseURL, "/"), repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("checking latest release: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Release{}, ErrNoRelease
	case resp.StatusCode != http.StatusOK:
		return Release{}, fmt.Errorf("checking latest release: %s", resp.Status)
	}

	var body struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Release{}, fmt.Errorf("decoding release: %w", err)
	}
	if body.TagName == "" {
		return Release{}, ErrNoRelease
	}
	return Release{
		Latest:  body.TagName,
		Current: current,
		Install: fmt.Sprintf("go install github.com/%s/cmd/argus@%s", repo, body.TagName),
	}, nil
}

// compareVersions orders "vMAJOR.MINOR.PATCH" strings numerically; a
// pre-release suffix sorts before the release. Unparseable parts compare
// as zero.
func compareVersions(a, b string) int {
	pa, prea := splitVersion(a)
	pb, preb := splitVersion(b)
	for i := range 3 {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case prea == preb:
		return 0
	case prea == "":
		return 1
	case preb == "":
		return -1
	}
	return strings.Compare(prea, preb)
}

func splitVersion(v string) ([3]int, string) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	v, pre, _ := strings.Cut(v, "-")
	var parts [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		parts[i], _ = strconv.Atoi(p)
	}
	return parts, pre
}
