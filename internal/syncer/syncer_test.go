package syncer

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
	"replisync/internal/digest"
	"replisync/internal/model"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	srcRoot = "/data/source"
	dstRoot = "/data/replica"
)

// writeTree creates files from a map of slash separated relative paths.
// Keys ending in "/" create empty directories.
func writeTree(t *testing.T, fs afero.Fs, root string, tree map[string]string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(root, 0755))

	for rel, content := range tree {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, fs.MkdirAll(path, 0755))
			continue
		}

		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
}

// readTree is the inverse of writeTree.
func readTree(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)

	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			tree[rel+"/"] = ""
			return nil
		}

		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		tree[rel] = string(data)
		return nil
	})
	require.NoError(t, err)

	return tree
}

func newObserved(fs afero.Fs, opts Options) (*Synchronizer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts.Fs = fs
	opts.Logger = zap.New(core)
	return New(opts), logs
}

func actionsOf(actions []model.Action, typ model.ActionType) []model.Action {
	var out []model.Action
	for _, a := range actions {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func TestSyncIntoEmptyReplica(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	})
	require.NoError(t, fs.MkdirAll(dstRoot, 0755))

	s, logs := newObserved(fs, Options{})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a.txt":     "hello",
		"sub/":      "",
		"sub/b.txt": "world",
	}, readTree(t, fs, dstRoot))

	assert.Equal(t, []model.Action{
		{Type: model.ActionCopyFile, Src: filepath.Join(srcRoot, "a.txt"), Path: filepath.Join(dstRoot, "a.txt")},
		{Type: model.ActionCreateDir, Path: filepath.Join(dstRoot, "sub")},
		{Type: model.ActionCopyFile, Src: filepath.Join(srcRoot, "sub", "b.txt"), Path: filepath.Join(dstRoot, "sub", "b.txt")},
	}, actions)

	assert.Equal(t, 2, logs.FilterMessage("copied file").Len())
	assert.Equal(t, 1, logs.FilterMessage("created directory").Len())

	created := logs.FilterMessage("created directory").All()[0]
	assert.Equal(t, filepath.Join(dstRoot, "sub"), created.ContextMap()["path"])
}

func TestSyncDeletesStaleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{"a.txt": "hello"})
	writeTree(t, fs, dstRoot, map[string]string{"a.txt": "hello", "stale.txt": "x"})

	s, logs := newObserved(fs, Options{})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a.txt": "hello"}, readTree(t, fs, dstRoot))
	assert.Equal(t, []model.Action{
		{Type: model.ActionDeleteFile, Path: filepath.Join(dstRoot, "stale.txt")},
	}, actions)
	assert.Equal(t, 1, logs.FilterMessage("deleted file").Len())
	assert.Zero(t, logs.FilterMessage("copied file").Len())
}

func TestSyncDeletesStaleDirectoryTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{"keep/a.txt": "a"})
	writeTree(t, fs, dstRoot, map[string]string{
		"keep/a.txt":     "a",
		"keep/old.txt":   "old",
		"gone/x/y/z.txt": "deep",
		"gone/empty/":    "",
	})

	s := New(Options{Fs: fs})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"keep/": "", "keep/a.txt": "a"}, readTree(t, fs, dstRoot))
	assert.ElementsMatch(t, []model.Action{
		{Type: model.ActionDeleteFile, Path: filepath.Join(dstRoot, "keep", "old.txt")},
		{Type: model.ActionDeleteDir, Path: filepath.Join(dstRoot, "gone")},
	}, actions)
}

func TestSyncIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{
		"a.txt":             "alpha",
		"b.bin":             string([]byte{0, 1, 2, 3}),
		"empty/":            "",
		"docs/readme.md":    "# readme",
		"docs/img/logo.svg": "<svg/>",
		"docs/img/zero":     "",
	})

	s := New(Options{Fs: fs})

	first, err := s.Sync(srcRoot, "/fresh/replica")
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := s.Sync(srcRoot, "/fresh/replica")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestSyncConverges(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{
		"a.txt":       "new content",
		"same.txt":    "same",
		"dir/c.txt":   "c",
		"dir/deeper/": "",
	})
	writeTree(t, fs, dstRoot, map[string]string{
		"a.txt":     "old",
		"same.txt":  "same",
		"dir/c.txt": "C",
		"dir/x.txt": "extra",
		"other/":    "",
	})

	s := New(Options{Fs: fs})
	_, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	src := readTree(t, fs, srcRoot)
	dst := readTree(t, fs, dstRoot)
	assert.Equal(t, src, dst)

	for rel := range src {
		if strings.HasSuffix(rel, "/") {
			continue
		}

		want, err := digest.File(fs, filepath.Join(srcRoot, rel))
		require.NoError(t, err)
		got, err := digest.File(fs, filepath.Join(dstRoot, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}
}

func TestSyncSizeMismatchTriggersCopy(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{"a.txt": "hello"})
	writeTree(t, fs, dstRoot, map[string]string{"a.txt": "hello, stale world"})

	s, logs := newObserved(fs, Options{})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionCopyFile, actions[0].Type)
	assert.Equal(t, map[string]string{"a.txt": "hello"}, readTree(t, fs, dstRoot))

	copied := logs.FilterMessage("copied file").All()
	require.Len(t, copied, 1)
	assert.Equal(t, "size", copied[0].ContextMap()["reason"])
}

func TestSyncDigestMismatchTriggersCopy(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{"a.txt": "hello"})
	writeTree(t, fs, dstRoot, map[string]string{"a.txt": "jello"})

	s, logs := newObserved(fs, Options{})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionCopyFile, actions[0].Type)
	assert.Equal(t, map[string]string{"a.txt": "hello"}, readTree(t, fs, dstRoot))

	copied := logs.FilterMessage("copied file").All()
	require.Len(t, copied, 1)
	assert.Equal(t, "content", copied[0].ContextMap()["reason"])
}

func TestSyncReconcilesEveryChangedFileInOnePass(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{
		"1.txt": "first",
		"2.txt": "second",
		"3.txt": "third",
		"4.txt": "same",
	})
	writeTree(t, fs, dstRoot, map[string]string{
		"1.txt": "first but longer",
		"2.txt": "SECOND",
		"3.txt": "3",
		"4.txt": "same",
		"5.txt": "stale",
	})

	s := New(Options{Fs: fs})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	assert.Len(t, actionsOf(actions, model.ActionCopyFile), 3)
	assert.Len(t, actionsOf(actions, model.ActionDeleteFile), 1)
	assert.Equal(t, readTree(t, fs, srcRoot), readTree(t, fs, dstRoot))
}

func TestSyncReplacesKindMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{
		"was-dir":        "now a file",
		"was-file/a.txt": "now a dir",
	})
	writeTree(t, fs, dstRoot, map[string]string{
		"was-dir/inner.txt": "x",
		"was-file":          "y",
	})

	s := New(Options{Fs: fs})
	actions, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	assert.Equal(t, readTree(t, fs, srcRoot), readTree(t, fs, dstRoot))
	assert.Equal(t, []model.Action{
		{Type: model.ActionDeleteDir, Path: filepath.Join(dstRoot, "was-dir")},
		{Type: model.ActionCopyFile, Src: filepath.Join(srcRoot, "was-dir"), Path: filepath.Join(dstRoot, "was-dir")},
		{Type: model.ActionDeleteFile, Path: filepath.Join(dstRoot, "was-file")},
		{Type: model.ActionCreateDir, Path: filepath.Join(dstRoot, "was-file")},
		{Type: model.ActionCopyFile, Src: filepath.Join(srcRoot, "was-file", "a.txt"), Path: filepath.Join(dstRoot, "was-file", "a.txt")},
	}, actions)
}

func TestSyncCreatesMissingRoots(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, logs := newObserved(fs, Options{})
	actions, err := s.Sync("/missing/source", "/missing/replica")
	require.NoError(t, err)
	assert.Empty(t, actions)

	for _, dir := range []string{"/missing/source", "/missing/replica"} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}
	assert.Equal(t, 2, logs.FilterMessage("created root directory").Len())
}

func TestSyncRejectsNestedRoots(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(Options{Fs: fs})

	_, err := s.Sync(srcRoot, filepath.Join(srcRoot, "backup"))
	assert.ErrorIs(t, err, ErrNestedReplica)

	_, err = s.Sync(srcRoot, srcRoot)
	assert.ErrorIs(t, err, ErrNestedReplica)

	_, err = s.Sync(filepath.Join(dstRoot, "inner"), dstRoot)
	assert.ErrorIs(t, err, ErrNestedReplica)

	_, err = s.Sync("/data/src", "/data/src-copy")
	assert.NoError(t, err)
}

func TestSyncIgnoreList(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, srcRoot, map[string]string{
		"a.txt":        "a",
		"scratch.tmp":  "tmp",
		".git/HEAD":    "ref",
		"sub/keep.txt": "k",
		"sub/x.swp":    "swap",
	})
	writeTree(t, fs, dstRoot, map[string]string{
		"local.tmp": "replica only, ignored",
	})

	s := New(Options{Fs: fs, IgnoreList: []string{"*.tmp", "*.swp", ".git"}})
	_, err := s.Sync(srcRoot, dstRoot)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a.txt":        "a",
		"local.tmp":    "replica only, ignored",
		"sub/":         "",
		"sub/keep.txt": "k",
	}, readTree(t, fs, dstRoot))
}

func TestSyncParallelMatchesSequential(t *testing.T) {
	tree := map[string]string{"root.txt": "r"}
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		for _, sub := range []string{"x", "y", "z"} {
			tree[d+"/"+sub+"/file.txt"] = d + sub
			tree[d+"/"+sub+"/deeper/leaf"] = sub + d
		}
		tree[d+"/top.txt"] = d
	}
	stale := map[string]string{
		"a/stale.txt":      "s",
		"b/x/old/":         "",
		"c/y/deeper/gone":  "g",
		"zzz/unused/a.txt": "u",
	}

	run := func(parallelism int) ([]model.Action, afero.Fs) {
		fs := afero.NewMemMapFs()
		writeTree(t, fs, srcRoot, tree)
		writeTree(t, fs, dstRoot, stale)

		actions, err := New(Options{Fs: fs, Parallelism: parallelism}).Sync(srcRoot, dstRoot)
		require.NoError(t, err)
		return actions, fs
	}

	seq, seqFs := run(1)
	par, parFs := run(4)

	key := func(a model.Action) string { return string(a.Type) + ":" + a.Path }
	sortActions := func(actions []model.Action) []string {
		keys := make([]string, 0, len(actions))
		for _, a := range actions {
			keys = append(keys, key(a))
		}
		slices.Sort(keys)
		return keys
	}

	assert.Equal(t, sortActions(seq), sortActions(par))
	assert.Equal(t, readTree(t, seqFs, dstRoot), readTree(t, parFs, dstRoot))
	assert.Equal(t, readTree(t, parFs, srcRoot), readTree(t, parFs, dstRoot))
}

// failingFs fails every write to one path.
type failingFs struct {
	afero.Fs
	path string
}

var errInjected = errors.New("injected failure")

func (f failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.HasPrefix(name, f.path) && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: errInjected}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestSyncErrorAbortsPass(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeTree(t, mem, srcRoot, map[string]string{
		"a.txt":     "a",
		"b.txt":     "b",
		"c.txt":     "c",
		"sub/d.txt": "d",
	})
	writeTree(t, mem, dstRoot, map[string]string{"stale.txt": "s"})

	fs := failingFs{Fs: mem, path: filepath.Join(dstRoot, "b.txt")}
	actions, err := New(Options{Fs: fs}).Sync(srcRoot, dstRoot)

	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
	assert.Contains(t, err.Error(), "b.txt")

	// a.txt went through before the failure, nothing after it ran
	assert.Equal(t, []model.Action{
		{Type: model.ActionCopyFile, Src: filepath.Join(srcRoot, "a.txt"), Path: filepath.Join(dstRoot, "a.txt")},
	}, actions)

	exists, err := afero.Exists(mem, filepath.Join(dstRoot, "stale.txt"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSyncErrorInParallelChildAbortsPass(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeTree(t, mem, srcRoot, map[string]string{
		"a/1.txt": "1",
		"b/2.txt": "2",
		"c/3.txt": "3",
	})
	writeTree(t, mem, dstRoot, map[string]string{"stale.txt": "s"})

	fs := failingFs{Fs: mem, path: filepath.Join(dstRoot, "b", "2.txt")}

	_, err := New(Options{Fs: fs, Parallelism: 3}).Sync(srcRoot, dstRoot)
	require.ErrorIs(t, err, errInjected)

	// deletions at the root never run when a child failed
	exists, err := afero.Exists(mem, filepath.Join(dstRoot, "stale.txt"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSyncOnDisk(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")

	fs := afero.NewOsFs()
	writeTree(t, fs, src, map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	})

	mtime := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), mtime, mtime))

	s := New(Options{Fs: fs})
	actions, err := s.Sync(src, dst)
	require.NoError(t, err)
	assert.Len(t, actions, 3)

	info, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	again, err := s.Sync(src, dst)
	require.NoError(t, err)
	assert.Empty(t, again)

	// a temp file left behind by an interrupted copy is cleaned up
	leftover := filepath.Join(dst, "a.txt.replisync.tmp")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0644))

	actions, err = s.Sync(src, dst)
	require.NoError(t, err)
	assert.Equal(t, []model.Action{{Type: model.ActionDeleteFile, Path: leftover}}, actions)
}

func TestIgnoreListMatch(t *testing.T) {
	l := ignoreList{"*.tmp", ".git", "cache?", "[bad"}

	assert.True(t, l.match("x.tmp"))
	assert.True(t, l.match(".git"))
	assert.True(t, l.match("cache1"))
	assert.False(t, l.match("cache12"))
	assert.False(t, l.match("main.go"))
	assert.False(t, l.match("[bad"))
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	assert.True(t, within(sep+"a", sep+"a"))
	assert.True(t, within(sep+"a", filepath.Join(sep+"a", "b")))
	assert.False(t, within(sep+"a", sep+"ab"))
	assert.False(t, within(filepath.Join(sep+"a", "b"), sep+"a"))
	assert.True(t, within(sep+"a", filepath.Join(sep+"a", "..b")))
}
