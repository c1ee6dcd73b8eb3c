package recon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PushEvent is the normalized shape of a source-control push.
type PushEvent struct {
	Owner     string
	Repo      string
	Branch    string
	CommitSHA string
	// Changed holds paths added or modified by the push; their content is
	// readable at CommitSHA.
	Changed []string
	// Removed holds paths deleted by the push; only the diff speaks for
	// them.
	Removed []string
}

// FullRepo returns the owner/name form used as the index namespace.
func (e *PushEvent) FullRepo() string {
	return e.Owner + "/" + e.Repo
}

type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
			Name  string `json:"name"`
		} `json:"owner"`
	} `json:"repository"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

// ParsePushEvent decodes a GitHub push webhook payload into a PushEvent.
// Paths touched by multiple commits are deduplicated; a path both changed
// and removed across the push counts as removed only if no later commit
// re-added it.
func ParsePushEvent(body []byte) (*PushEvent, error) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}

	owner := p.Repository.Owner.Login
	if owner == "" {
		owner = p.Repository.Owner.Name
	}
	if owner == "" || p.Repository.Name == "" {
		return nil, fmt.Errorf("push payload missing repository identity")
	}

	ev := &PushEvent{
		Owner:     owner,
		Repo:      p.Repository.Name,
		Branch:    strings.TrimPrefix(p.Ref, "refs/heads/"),
		CommitSHA: p.After,
	}

	changed := make(map[string]bool)
	removed := make(map[string]bool)
	for _, c := range p.Commits {
		for _, path := range c.Added {
			changed[path] = true
			delete(removed, path)
		}
		for _, path := range c.Modified {
			changed[path] = true
			delete(removed, path)
		}
		for _, path := range c.Removed {
			removed[path] = true
			delete(changed, path)
		}
	}
	ev.Changed = sortedSet(changed)
	ev.Removed = sortedSet(removed)

	return ev, nil
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
