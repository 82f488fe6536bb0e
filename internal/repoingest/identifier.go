package repoingest

import (
	"fmt"
	"regexp"
	"strings"
)

var githubURLRe = regexp.MustCompile(`github\.com[/:]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseIdentifier accepts either an "owner/repo" shorthand or a full GitHub
// URL (https://github.com/owner/repo, with or without a trailing .git) and
// returns the owner and repo name.
func ParseIdentifier(identifier string) (owner, repo string, err error) {
	id := strings.TrimSuffix(strings.TrimRight(identifier, "/"), ".git")

	if !strings.Contains(id, "://") && !strings.HasPrefix(id, "git@") {
		if parts := strings.Split(id, "/"); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}

	if m := githubURLRe.FindStringSubmatch(id); m != nil {
		return m[1], m[2], nil
	}

	return "", "", fmt.Errorf("invalid repository identifier: %s", identifier)
}

// FullName renders the canonical "owner/repo" form, the key CategoryRepository
// and the incremental-index lookup both use.
func FullName(owner, repo string) string {
	return owner + "/" + repo
}
