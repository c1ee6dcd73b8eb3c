package recon

import (
	"path"
	"regexp"
	"strings"
)

var (
	// contentLink matches markdown links with an absolute http(s) target.
	contentLink = regexp.MustCompile(`\[.*?\]\((https?://[^\s)]+)\)`)
	// diffLink is looser: diff hunks may carry relative targets that are
	// filtered out after extraction.
	diffLink = regexp.MustCompile(`\[.*?\]\((.*?)\)`)
)

// ExtractLinks returns every absolute reference link in content, in order
// of first appearance, deduplicated.
func ExtractLinks(content string) []string {
	var links []string
	seen := make(map[string]bool)
	for _, m := range contentLink.FindAllStringSubmatch(content, -1) {
		link := m[1]
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}
	return links
}

// ExtractDiffLinks scans a unified diff and returns the absolute links on
// added and removed lines. File headers and hunk markers are skipped. A
// link both added and removed in the same diff moved rather than changed
// and is dropped from removed.
func ExtractDiffLinks(diff string) (added, removed []string) {
	addSet := make(map[string]bool)
	removeSet := make(map[string]bool)

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			for _, link := range diffLineLinks(line[1:]) {
				addSet[link] = true
			}
		case strings.HasPrefix(line, "-"):
			for _, link := range diffLineLinks(line[1:]) {
				removeSet[link] = true
			}
		}
	}

	for link := range removeSet {
		if addSet[link] {
			delete(removeSet, link)
		}
	}

	return sortedSet(addSet), sortedSet(removeSet)
}

func diffLineLinks(line string) []string {
	var links []string
	for _, m := range diffLink.FindAllStringSubmatch(line, -1) {
		link := m[1]
		if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
			links = append(links, link)
		}
	}
	return links
}

// matchesPath reports whether a changed file path is inside the watched
// tree and carries an allowed extension. Empty allow-lists match
// everything for that dimension.
func matchesPath(filePath string, searchPaths, extensions []string) bool {
	if len(searchPaths) > 0 {
		ok := false
		for _, pattern := range searchPaths {
			if matched, err := path.Match(pattern, filePath); err == nil && matched {
				ok = true
				break
			}
			if strings.HasPrefix(filePath, strings.TrimSuffix(pattern, "/")+"/") {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if len(extensions) > 0 {
		ext := strings.TrimPrefix(path.Ext(filePath), ".")
		ok := false
		for _, allowed := range extensions {
			if strings.EqualFold(ext, strings.TrimPrefix(allowed, ".")) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	return true
}
