package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/capability"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "init", "--initial-branch=main")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
}

func newTestInspector(t *testing.T) (*Inspector, *capability.Capability, *audit.Log) {
	t.Helper()

	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	cap, err := capability.Mint(t.TempDir(), capability.Full())
	require.NoError(t, err)

	return NewInspector(log), cap, log
}

func TestIsRepository(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)

	ok, err := in.IsRepository(cap, ".")
	require.NoError(t, err)
	assert.False(t, ok)

	initRepo(t, cap.Root())

	ok, err = in.IsRepository(cap, ".")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatus_EmptyRepo(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)
	initRepo(t, cap.Root())

	st, err := in.Status(context.Background(), cap, ".")
	require.NoError(t, err)
	assert.True(t, st.IsClean)
	assert.False(t, st.HasStaged)
	assert.False(t, st.HasUnstaged)
	assert.False(t, st.HasUntracked)
}

func TestStatus_Changes(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)
	root := cap.Root()
	initRepo(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("content"), 0644))

	st, err := in.Status(context.Background(), cap, ".")
	require.NoError(t, err)
	assert.False(t, st.IsClean)
	assert.True(t, st.HasUntracked)
	require.Len(t, st.Entries, 1)
	assert.Equal(t, "new.txt", st.Entries[0].Path)
	assert.Equal(t, StatusNew, st.Entries[0].Worktree)

	runGit(t, root, "add", "new.txt")

	st, err = in.Status(context.Background(), cap, ".")
	require.NoError(t, err)
	assert.True(t, st.HasStaged)
	assert.False(t, st.HasUntracked)
	assert.Equal(t, StatusNew, st.Entries[0].Index)
}

func TestStatus_BranchAndHead(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)
	root := cap.Root()
	initRepo(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))
	runGit(t, root, "add", "a.txt")
	runGit(t, root, "commit", "-m", "initial")

	st, err := in.Status(context.Background(), cap, ".")
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.NotEmpty(t, st.Head)
	assert.True(t, st.IsClean)
}

func TestStatus_NotARepository(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)

	_, err := in.Status(context.Background(), cap, ".")
	require.Error(t, err)
	assert.Equal(t, CodeNotARepository, CodeOf(err))
}

func TestStatus_DeniedWithoutRead(t *testing.T) {
	requireGit(t)
	in, cap, log := newTestInspector(t)
	initRepo(t, cap.Root())

	writeOnly, err := capability.Mint(cap.Root(), capability.PermWrite)
	require.NoError(t, err)

	_, err = in.Status(context.Background(), writeOnly, ".")
	require.Error(t, err)
	assert.Equal(t, capability.CodeDenied, capability.CodeOf(err))

	entries, err := log.ReadEntries(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeDenied, entries[0].Record.Outcome)
}

func TestFindRepositories(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)
	root := cap.Root()

	for _, dir := range []string{"project1", "group/project2", "not-a-repo"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}
	initRepo(t, filepath.Join(root, "project1"))
	initRepo(t, filepath.Join(root, "group", "project2"))

	repos, err := in.FindRepositories(cap, ".", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"project1", filepath.Join("group", "project2")}, repos)
}

func TestRemoteURL(t *testing.T) {
	requireGit(t)
	in, cap, _ := newTestInspector(t)
	root := cap.Root()
	initRepo(t, root)

	url, err := in.RemoteURL(context.Background(), cap, ".", "origin")
	require.NoError(t, err)
	assert.Empty(t, url)

	runGit(t, root, "remote", "add", "origin", "https://github.com/user/repo.git")

	url, err = in.RemoteURL(context.Background(), cap, ".", "origin")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/user/repo.git", url)
}

func TestParsePorcelain_Rename(t *testing.T) {
	var st Status
	parsePorcelain("R  old.txt -> new.txt\n M other.txt\n", &st)

	require.Len(t, st.Entries, 2)
	assert.Equal(t, "new.txt", st.Entries[0].Path)
	assert.Equal(t, StatusRenamed, st.Entries[0].Index)
	assert.True(t, st.HasStaged)
	assert.Equal(t, "other.txt", st.Entries[1].Path)
	assert.Equal(t, StatusModified, st.Entries[1].Worktree)
	assert.True(t, st.HasUnstaged)
}
