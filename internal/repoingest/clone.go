package repoingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"

	"dev.vasic.ultramemory/internal/config"
)

// CloneResult is what a RepoCloner hands back: the local checkout plus the
// HEAD commit and whatever repository metadata could be resolved.
type CloneResult struct {
	Dir           string
	HeadSHA       string
	HeadDate      time.Time
	DefaultBranch string
	Visibility    string
	HTMLURL       string
	Description   string
}

// FileCommit is one file's last-touching commit, per
// original_source/core/github_client.py's get_file_history.
type FileCommit struct {
	SHA    string
	Date   time.Time
	Author string
	Email  string
}

// RepoCloner shallow-clones a repository to a scratch directory, reads its
// commit history, and cleans up afterward. Two backends exist: GoGitCloner
// (default) and CLICloner (shells out to the system git binary, selected via
// config.RepoIngestConfig.CloneBackend == "cli").
type RepoCloner interface {
	Clone(ctx context.Context, owner, repo string) (CloneResult, error)
	FileHistory(ctx context.Context, dir, relPath string) (FileCommit, error)
	Cleanup(dir string)
}

// NewCloner selects a RepoCloner backend per cfg.CloneBackend.
func NewCloner(cfg config.RepoIngestConfig, log *logrus.Logger) RepoCloner {
	if log == nil {
		log = logrus.New()
	}
	base := &cloneBase{cfg: cfg, log: log.WithField("component", "repoingest")}
	if cfg.CloneBackend == "cli" {
		return &CLICloner{cloneBase: base}
	}
	return &GoGitCloner{cloneBase: base}
}

type cloneBase struct {
	cfg config.RepoIngestConfig
	log *logrus.Entry
}

// tempDirFor allocates a scratch directory under cfg.CloneDir, namespaced by
// repo so concurrent ingests of different repos never collide.
func (b *cloneBase) tempDirFor(repo string) (string, error) {
	root := b.cfg.CloneDir
	if root == "" {
		root = os.TempDir()
	}
	return os.MkdirTemp(root, fmt.Sprintf("ulmemory-%s-*", repo))
}

// Cleanup removes dir, but only after verifying it sits under the clone root
// (cfg.CloneDir, or the system temp dir when that is unset) — the safety
// check original_source's GitHubClient.cleanup()
// applies before any recursive delete, carried over here since a cloned
// checkout is exactly the kind of path a bug could otherwise point outside
// the scratch area.
func (b *cloneBase) Cleanup(dir string) {
	if dir == "" {
		return
	}
	root := b.cfg.CloneDir
	if root == "" {
		root = os.TempDir()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		b.log.WithError(err).Warn("cleanup: could not resolve temp root, skipping removal")
		return
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		b.log.WithError(err).Warn("cleanup: could not resolve clone dir, skipping removal")
		return
	}
	if absDir == absRoot || !strings.HasPrefix(absDir, absRoot+string(os.PathSeparator)) {
		b.log.WithField("dir", absDir).Warn("cleanup: directory is not under the temp root, refusing to remove")
		return
	}
	if err := os.RemoveAll(absDir); err != nil {
		b.log.WithError(err).WithField("dir", absDir).Warn("cleanup: remove failed")
	}
}

// GoGitCloner clones purely in-process via go-git — the primary backend, and
// the one every other example repo in this codebase's pack reaches for
// (github.com/go-git/go-git/v5, as internal/gitingest does).
type GoGitCloner struct {
	*cloneBase
}

func (c *GoGitCloner) Clone(ctx context.Context, owner, repo string) (CloneResult, error) {
	dir, err := c.tempDirFor(repo)
	if err != nil {
		return CloneResult{}, fmt.Errorf("allocating clone dir: %w", err)
	}

	url := fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	gitRepo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		c.Cleanup(dir)
		return CloneResult{}, fmt.Errorf("cloning %s: %w", url, err)
	}

	headRef, err := gitRepo.Head()
	if err != nil {
		c.Cleanup(dir)
		return CloneResult{}, fmt.Errorf("resolving HEAD for %s: %w", url, err)
	}

	commit, err := gitRepo.CommitObject(headRef.Hash())
	if err != nil {
		c.Cleanup(dir)
		return CloneResult{}, fmt.Errorf("reading HEAD commit for %s: %w", url, err)
	}

	result := CloneResult{
		Dir:           dir,
		HeadSHA:       headRef.Hash().String(),
		HeadDate:      commit.Author.When,
		DefaultBranch: headRef.Name().Short(),
	}

	meta, err := fetchRepoMetadata(ctx, owner, repo, c.cfg.GitHubToken)
	if err != nil {
		c.log.WithError(err).Debug("repo metadata fetch failed, continuing with clone-derived fields only")
	} else {
		if meta.DefaultBranch != "" {
			result.DefaultBranch = meta.DefaultBranch
		}
		result.Visibility = meta.Visibility
		result.HTMLURL = meta.HTMLURL
		result.Description = meta.Description
	}
	if result.HTMLURL == "" {
		result.HTMLURL = url
	}
	if result.Visibility == "" {
		result.Visibility = "unknown"
	}

	return result, nil
}

func (c *GoGitCloner) FileHistory(ctx context.Context, dir, relPath string) (FileCommit, error) {
	gitRepo, err := git.PlainOpen(dir)
	if err != nil {
		return FileCommit{}, err
	}
	path := filepath.ToSlash(relPath)
	iter, err := gitRepo.Log(&git.LogOptions{FileName: &path})
	if err != nil {
		return FileCommit{}, err
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		return FileCommit{}, err
	}
	return FileCommit{
		SHA:    commit.Hash.String(),
		Date:   commit.Author.When,
		Author: commit.Author.Name,
		Email:  commit.Author.Email,
	}, nil
}

// CLICloner shells out to the system git binary — the secondary backend,
// selected when shallow-clone behavior needs to match whatever git version
// is installed rather than go-git's pure-Go implementation (e.g. submodules
// or LFS-backed repositories go-git doesn't fully support).
type CLICloner struct {
	*cloneBase
}

func (c *CLICloner) Clone(ctx context.Context, owner, repo string) (CloneResult, error) {
	dir, err := c.tempDirFor(repo)
	if err != nil {
		return CloneResult{}, fmt.Errorf("allocating clone dir: %w", err)
	}

	url := fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch", url, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		c.Cleanup(dir)
		return CloneResult{}, fmt.Errorf("git clone %s: %w: %s", url, err, strings.TrimSpace(string(out)))
	}

	sha, err := runGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		c.Cleanup(dir)
		return CloneResult{}, err
	}
	dateStr, err := runGit(ctx, dir, "log", "-1", "--format=%cI")
	if err != nil {
		c.Cleanup(dir)
		return CloneResult{}, err
	}
	branch, _ := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")

	headDate, _ := time.Parse(time.RFC3339, strings.TrimSpace(dateStr))

	result := CloneResult{
		Dir:           dir,
		HeadSHA:       strings.TrimSpace(sha),
		HeadDate:      headDate,
		DefaultBranch: strings.TrimSpace(branch),
	}

	meta, err := fetchRepoMetadata(ctx, owner, repo, c.cfg.GitHubToken)
	if err != nil {
		c.log.WithError(err).Debug("repo metadata fetch failed, continuing with clone-derived fields only")
	} else {
		if meta.DefaultBranch != "" {
			result.DefaultBranch = meta.DefaultBranch
		}
		result.Visibility = meta.Visibility
		result.HTMLURL = meta.HTMLURL
		result.Description = meta.Description
	}
	if result.HTMLURL == "" {
		result.HTMLURL = url
	}
	if result.Visibility == "" {
		result.Visibility = "unknown"
	}

	return result, nil
}

func (c *CLICloner) FileHistory(ctx context.Context, dir, relPath string) (FileCommit, error) {
	out, err := runGit(ctx, dir, "log", "-1", "--format=%H|%cI|%an|%ae", "--", relPath)
	if err != nil {
		return FileCommit{}, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return FileCommit{}, fmt.Errorf("no commit history for %s", relPath)
	}
	parts := strings.SplitN(out, "|", 4)
	fc := FileCommit{}
	if len(parts) > 0 {
		fc.SHA = parts[0]
	}
	if len(parts) > 1 {
		fc.Date, _ = time.Parse(time.RFC3339, parts[1])
	}
	if len(parts) > 2 {
		fc.Author = parts[2]
	}
	if len(parts) > 3 {
		fc.Email = parts[3]
	}
	return fc, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

type githubRepoMetadata struct {
	DefaultBranch string
	Visibility    string
	HTMLURL       string
	Description   string
}

// fetchRepoMetadata makes a single best-effort GET against the public GitHub
// REST API for fields go-git's clone never surfaces (visibility, description,
// canonical HTML URL). No ecosystem client library for this lives in the
// example pack, so this is a deliberately thin stdlib net/http call rather
// than a hand-rolled API client — a single unauthenticated-by-default GET
// with a short timeout, failing soft into CloneResult's "unknown" defaults.
func fetchRepoMetadata(ctx context.Context, owner, repo, token string) (githubRepoMetadata, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, repo), nil)
	if err != nil {
		return githubRepoMetadata{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return githubRepoMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return githubRepoMetadata{}, fmt.Errorf("github api returned %d", resp.StatusCode)
	}

	var payload struct {
		DefaultBranch string `json:"default_branch"`
		Visibility    string `json:"visibility"`
		Private       bool   `json:"private"`
		HTMLURL       string `json:"html_url"`
		Description   string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return githubRepoMetadata{}, err
	}

	visibility := payload.Visibility
	if visibility == "" {
		if payload.Private {
			visibility = "private"
		} else {
			visibility = "public"
		}
	}

	return githubRepoMetadata{
		DefaultBranch: payload.DefaultBranch,
		Visibility:    visibility,
		HTMLURL:       payload.HTMLURL,
		Description:   payload.Description,
	}, nil
}
