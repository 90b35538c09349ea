// Package gitrepo provides read-only inspection of git repositories
// inside a capability root. It shells out to the git binary; no write
// operation is exposed. Every inspection is authorized through the
// caller's capability and, when a log is attached, accounted to the
// audit trail.
package gitrepo

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/polysafe/fsguard/internal/logger"
	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/capability"
)

// FileStatus describes one side (index or worktree) of a file's state.
type FileStatus string

const (
	StatusNew        FileStatus = "new"
	StatusModified   FileStatus = "modified"
	StatusDeleted    FileStatus = "deleted"
	StatusRenamed    FileStatus = "renamed"
	StatusTypeChange FileStatus = "typechange"
	StatusConflicted FileStatus = "conflicted"
)

// StatusEntry is a changed file with its index and worktree states.
// An empty FileStatus means that side is unchanged.
type StatusEntry struct {
	Path     string     `json:"path" yaml:"path"`
	Index    FileStatus `json:"index,omitempty" yaml:"index,omitempty"`
	Worktree FileStatus `json:"worktree,omitempty" yaml:"worktree,omitempty"`
}

// Status is the overall state of a repository's working tree.
type Status struct {
	Path         string        `json:"path" yaml:"path"`
	Branch       string        `json:"branch,omitempty" yaml:"branch,omitempty"`
	Head         string        `json:"head,omitempty" yaml:"head,omitempty"`
	Entries      []StatusEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
	IsClean      bool          `json:"is_clean" yaml:"is_clean"`
	HasStaged    bool          `json:"has_staged" yaml:"has_staged"`
	HasUnstaged  bool          `json:"has_unstaged" yaml:"has_unstaged"`
	HasUntracked bool          `json:"has_untracked" yaml:"has_untracked"`
}

// Inspector answers read-only questions about repositories under a
// capability root. log may be nil to disable audit accounting.
type Inspector struct {
	log     *audit.Log
	gitPath string
	gitErr  error
}

// NewInspector locates the git binary and returns an inspector. The
// lookup failure, if any, is deferred to the first call that needs git.
func NewInspector(log *audit.Log) *Inspector {
	path, err := exec.LookPath("git")
	return &Inspector{log: log, gitPath: path, gitErr: err}
}

// IsRepository reports whether rel under the capability root carries
// git metadata. Requires Read permission.
func (in *Inspector) IsRepository(cap *capability.Capability, rel string) (bool, error) {
	dir, err := in.authorize(cap, rel, "repo-check")
	if err != nil {
		return false, err
	}

	// A .git directory for ordinary repos, a .git file for worktrees
	// and submodules.
	if _, err := os.Lstat(filepath.Join(dir, ".git")); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, newIO(rel, err)
	}
	return true, nil
}

// Status returns the branch, short HEAD and per-file change state of
// the repository at rel. Requires Read permission.
func (in *Inspector) Status(ctx context.Context, cap *capability.Capability, rel string) (*Status, error) {
	dir, err := in.authorize(cap, rel, "repo-status")
	if err != nil {
		return nil, err
	}
	if in.gitErr != nil {
		return nil, newGitUnavailable(in.gitErr)
	}
	if ok, err := in.IsRepository(cap, rel); err != nil {
		return nil, err
	} else if !ok {
		return nil, newNotARepository(rel)
	}

	st := &Status{Path: dir}

	// Branch name; "HEAD" means detached.
	if out, err := in.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		if branch := strings.TrimSpace(out); branch != "HEAD" {
			st.Branch = branch
		}
	}
	// Short HEAD hash; fails on a repository with no commits.
	if out, err := in.git(ctx, dir, "rev-parse", "--short", "HEAD"); err == nil {
		st.Head = strings.TrimSpace(out)
	}

	out, err := in.git(ctx, dir, "status", "--porcelain=v1")
	if err != nil {
		return nil, err
	}
	parsePorcelain(out, st)
	st.IsClean = len(st.Entries) == 0

	in.logInspection("repo-status", cap, rel, audit.OutcomeAllowed)
	return st, nil
}

// DefaultBranch returns the repository's best-guess default branch:
// the first of main, master, develop or trunk that exists locally,
// falling back to the current branch. Empty when detached with no
// recognizable branch.
func (in *Inspector) DefaultBranch(ctx context.Context, cap *capability.Capability, rel string) (string, error) {
	dir, err := in.authorize(cap, rel, "repo-default-branch")
	if err != nil {
		return "", err
	}
	if in.gitErr != nil {
		return "", newGitUnavailable(in.gitErr)
	}

	for _, name := range []string{"main", "master", "develop", "trunk"} {
		if _, err := in.git(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+name); err == nil {
			return name, nil
		}
	}
	out, err := in.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if branch := strings.TrimSpace(out); branch != "HEAD" {
		return branch, nil
	}
	return "", nil
}

// RemoteURL returns the fetch URL of the named remote, or empty when
// the remote does not exist.
func (in *Inspector) RemoteURL(ctx context.Context, cap *capability.Capability, rel, remote string) (string, error) {
	dir, err := in.authorize(cap, rel, "repo-remote")
	if err != nil {
		return "", err
	}
	if in.gitErr != nil {
		return "", newGitUnavailable(in.gitErr)
	}

	out, err := in.git(ctx, dir, "remote", "get-url", remote)
	if err != nil {
		// A missing remote is an answer, not a failure.
		if CodeOf(err) == CodeCommandFailed {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// FindRepositories walks at most maxDepth levels below rel and returns
// the capability-relative paths of directories carrying git metadata.
// Hidden directories are skipped and repositories are not descended
// into, so nested submodule checkouts are not reported twice.
func (in *Inspector) FindRepositories(cap *capability.Capability, rel string, maxDepth int) ([]string, error) {
	dir, err := in.authorize(cap, rel, "repo-find")
	if err != nil {
		return nil, err
	}

	var repos []string
	if err := findRepos(dir, dir, maxDepth, &repos); err != nil {
		return nil, newIO(rel, err)
	}
	return repos, nil
}

func findRepos(root, current string, depth int, repos *[]string) error {
	if depth < 0 {
		return nil
	}
	if _, err := os.Lstat(filepath.Join(current, ".git")); err == nil {
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		*repos = append(*repos, rel)
		return nil
	}

	entries, err := os.ReadDir(current)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := findRepos(root, filepath.Join(current, entry.Name()), depth-1, repos); err != nil {
			return err
		}
	}
	return nil
}

// authorize resolves rel under cap with Read permission, logging a
// denied attempt on failure.
func (in *Inspector) authorize(cap *capability.Capability, rel, op string) (string, error) {
	dir, err := cap.Authorize(rel, capability.PermRead)
	if err != nil {
		in.logInspection(op, cap, rel, audit.OutcomeDenied)
		return "", err
	}
	return dir, nil
}

func (in *Inspector) logInspection(op string, cap *capability.Capability, rel string, outcome audit.Outcome) {
	if in.log == nil {
		return
	}
	_, err := in.log.Append(audit.Record{
		Op:           op,
		Path:         rel,
		Outcome:      outcome,
		CapabilityID: cap.ID(),
	})
	if err != nil {
		logger.Error("failed to record repository inspection",
			logger.KeyOp, op, logger.KeyPath, rel, logger.KeyError, err)
	}
}

// git runs a git subcommand with dir as the working tree and returns
// its stdout.
func (in *Inspector) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, in.gitPath, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", newCommandFailed(dir, args, strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// parsePorcelain fills st from `git status --porcelain=v1` output.
func parsePorcelain(out string, st *Status) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		x, y := line[0], line[1]
		path := line[3:]
		// Rename lines read "R  old -> new"; report the new path.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}

		entry := StatusEntry{Path: path}
		if x == '?' && y == '?' {
			entry.Worktree = StatusNew
			st.HasUntracked = true
			st.HasUnstaged = true
		} else {
			entry.Index = statusLetter(x)
			entry.Worktree = statusLetter(y)
			if entry.Index != "" {
				st.HasStaged = true
			}
			if entry.Worktree != "" {
				st.HasUnstaged = true
			}
		}
		st.Entries = append(st.Entries, entry)
	}
}

func statusLetter(c byte) FileStatus {
	switch c {
	case 'A':
		return StatusNew
	case 'M':
		return StatusModified
	case 'D':
		return StatusDeleted
	case 'R', 'C':
		return StatusRenamed
	case 'T':
		return StatusTypeChange
	case 'U':
		return StatusConflicted
	default:
		return ""
	}
}
