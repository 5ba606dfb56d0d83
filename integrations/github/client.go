// Package github fetches merge-request content for claim verification. The
// engine depends only on the returned text blob; all policy lives in the
// verifier.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"bountyx/native/bounty"
)

const defaultFetchTimeout = 10 * time.Second

// ErrNotFound is returned when the merge request does not exist or is not
// visible to the service.
var ErrNotFound = errors.New("github: merge request not found")

var pullURLPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)

// Client retrieves pull request title/body/merged state from the GitHub API.
type Client struct {
	apiBase string
	token   string
	http    *http.Client
}

// NewClient builds a fetcher. An empty token uses unauthenticated requests;
// apiBase defaults to the public API and exists for tests.
func NewClient(apiBase, token string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.github.com"
	}
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultFetchTimeout},
	}
}

type pullResponse struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	Merged         bool   `json:"merged"`
	MergeCommitSHA string `json:"merge_commit_sha"`
}

// FetchMergeRequest implements bounty.MergeRequestFetcher. The public URL is
// rewritten to its API form the same way the ledger sees it: owner/repo and
// pull number extracted, everything else rejected.
func (c *Client) FetchMergeRequest(ctx context.Context, url string) (*bounty.MergeRequest, error) {
	match := pullURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if match == nil {
		return nil, fmt.Errorf("github: not a pull request URL: %s", url)
	}
	apiURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%s", c.apiBase, match[1], match[2], match[3])
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: fetch %s: %w", apiURL, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("github: fetch %s: unexpected status %s", apiURL, resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("github: read response: %w", err)
	}
	var pull pullResponse
	if err := json.Unmarshal(raw, &pull); err != nil {
		return nil, fmt.Errorf("github: decode response: %w", err)
	}
	return &bounty.MergeRequest{
		URL:    url,
		Title:  pull.Title,
		Body:   pull.Body,
		Merged: pull.Merged || pull.MergeCommitSHA != "",
	}, nil
}
