// Package scm abstracts the source-control host the reconciler reads
// commit diffs and file contents from.
package scm

import "context"

// Client reads commit data from a source-control host.
type Client interface {
	// FetchDiff returns the unified diff for a single commit.
	FetchDiff(ctx context.Context, owner, repo, sha string) (string, error)

	// FetchFileAtCommit returns the contents of path as of the given
	// commit.
	FetchFileAtCommit(ctx context.Context, owner, repo, path, sha string) (string, error)
}
