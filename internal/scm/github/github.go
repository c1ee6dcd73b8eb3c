// Package github implements the scm.Client interface against the GitHub
// REST API.
package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// Client fetches commit diffs and file contents from GitHub.
type Client struct {
	gh *gh.Client
}

// New creates a GitHub client. An empty token yields an unauthenticated
// client subject to low rate limits.
func New(ctx context.Context, token string) *Client {
	if token == "" {
		return &Client{gh: gh.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{gh: gh.NewClient(oauth2.NewClient(ctx, ts))}
}

// FetchDiff returns the unified diff for a commit.
func (c *Client) FetchDiff(ctx context.Context, owner, repo, sha string) (string, error) {
	diff, _, err := c.gh.Repositories.GetCommitRaw(ctx, owner, repo, sha, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return "", fmt.Errorf("fetch diff %s/%s@%s: %w", owner, repo, sha, err)
	}
	return diff, nil
}

// FetchFileAtCommit returns the decoded contents of path at a commit.
func (c *Client) FetchFileAtCommit(ctx context.Context, owner, repo, path, sha string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path,
		&gh.RepositoryContentGetOptions{Ref: sha})
	if err != nil {
		return "", fmt.Errorf("fetch %s at %s/%s@%s: %w", path, owner, repo, sha, err)
	}
	if file == nil {
		return "", fmt.Errorf("fetch %s at %s/%s@%s: path is a directory", path, owner, repo, sha)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s at %s/%s@%s: %w", path, owner, repo, sha, err)
	}
	return content, nil
}
