package parsers

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ExecFunc is the injected capability the git probes run through, per
// A pure function of (cmd, args, cwd) that
// returns the command's stdout. Production wiring shells out via
// os/exec; tests inject a fake that returns canned output.
type ExecFunc func(cmd string, args []string, cwd string) (stdout string, err error)

func runGit(exec ExecFunc, cwd string, args ...string) (string, error) {
	out, err := exec("git", args, cwd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WorktreeInfo is the result of DetectGitWorktree.
type WorktreeInfo struct {
	Branch     string
	Worktree   string
	IsWorktree bool
}

// DetectGitWorktree runs `git branch --show-current`, `git rev-parse
// --git-dir`, `git rev-parse --git-common-dir`, and (for worktrees) `git
// rev-parse --show-toplevel`. A detached HEAD (empty branch) yields a zero
// WorktreeInfo. A directory is a worktree iff its git-dir is not ".git"
// and its git-common-dir differs from its git-dir.
func DetectGitWorktree(cwd string, exec ExecFunc) WorktreeInfo {
	branch, err := runGit(exec, cwd, "branch", "--show-current")
	if err != nil || branch == "" {
		return WorktreeInfo{}
	}

	gitDir, err := runGit(exec, cwd, "rev-parse", "--git-dir")
	if err != nil {
		return WorktreeInfo{Branch: branch}
	}
	commonDir, err := runGit(exec, cwd, "rev-parse", "--git-common-dir")
	if err != nil {
		return WorktreeInfo{Branch: branch}
	}

	info := WorktreeInfo{Branch: branch, IsWorktree: gitDir != ".git" && commonDir != gitDir}
	if info.IsWorktree {
		if top, err := runGit(exec, cwd, "rev-parse", "--show-toplevel"); err == nil && top != "" {
			info.Worktree = top
		}
	}
	return info
}

// GitStatus is the result of DetectGitStatus.
type GitStatus struct {
	Ahead       int
	Behind      int
	HasUpstream bool
	Dirty       bool
}

// gitStatusCacheTTL bounds how long a cwd's status is reused before
// DetectGitStatus re-probes it.
const gitStatusCacheTTL = 2 * time.Second

type gitStatusCacheEntry struct {
	status    GitStatus
	expiresAt time.Time
}

var (
	gitStatusCacheMu sync.Mutex
	gitStatusCache   = make(map[string]gitStatusCacheEntry)
	gitStatusClock   = time.Now
)

// DetectGitStatus reports {ahead, behind, hasUpstream, isDirty} for cwd,
// cached per-cwd for gitStatusCacheTTL to avoid hammering git on every
// poll tick.
func DetectGitStatus(cwd string, exec ExecFunc) (GitStatus, error) {
	gitStatusCacheMu.Lock()
	if entry, ok := gitStatusCache[cwd]; ok && gitStatusClock().Before(entry.expiresAt) {
		gitStatusCacheMu.Unlock()
		return entry.status, nil
	}
	gitStatusCacheMu.Unlock()

	out, err := exec("git", []string{"status", "--porcelain=v2", "--branch"}, cwd)
	if err != nil {
		return GitStatus{}, err
	}
	status := parseStatusPorcelain(out)

	gitStatusCacheMu.Lock()
	gitStatusCache[cwd] = gitStatusCacheEntry{status: status, expiresAt: gitStatusClock().Add(gitStatusCacheTTL)}
	gitStatusCacheMu.Unlock()

	return status, nil
}

// ClearGitStatusCache invalidates the cached status for cwd, e.g. after a
// git push/commit/pull/merge/rebase/checkout/switch is observed.
func ClearGitStatusCache(cwd string) {
	gitStatusCacheMu.Lock()
	defer gitStatusCacheMu.Unlock()
	delete(gitStatusCache, cwd)
}

func parseStatusPorcelain(out string) GitStatus {
	var s GitStatus
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "# branch.upstream"):
			s.HasUpstream = true
		case strings.HasPrefix(line, "# branch.ab"):
			fields := strings.Fields(line)
			for _, f := range fields {
				if strings.HasPrefix(f, "+") {
					s.Ahead, _ = strconv.Atoi(strings.TrimPrefix(f, "+"))
				} else if strings.HasPrefix(f, "-") {
					s.Behind, _ = strconv.Atoi(strings.TrimPrefix(f, "-"))
				}
			}
		case strings.HasPrefix(line, "#"), line == "":
			// other header lines carry no dirty-state information.
		default:
			s.Dirty = true
		}
	}
	return s
}
