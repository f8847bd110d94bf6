package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"replisync/internal/digest"
	"replisync/internal/model"
	"replisync/internal/util"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNestedReplica = errors.New("source and replica must not contain each other")
	// ErrSpecialFile is returned for source entries that are neither a
	// directory nor a regular file, such as named pipes and sockets.
	ErrSpecialFile = errors.New("not a regular file or directory")
)

type Options struct {
	Fs         afero.Fs
	Logger     *zap.Logger
	IgnoreList []string
	// Parallelism bounds how many directories are reconciled at once.
	// Values below 2 keep a pass strictly sequential.
	Parallelism int
}

// Synchronizer makes a replica tree mirror a source tree. It never
// writes to the source, apart from creating a missing source root.
type Synchronizer struct {
	fs          afero.Fs
	log         *zap.Logger
	ignore      ignoreList
	parallelism int
}

func New(opts Options) *Synchronizer {
	s := &Synchronizer{
		fs:          opts.Fs,
		log:         opts.Logger,
		ignore:      ignoreList(opts.IgnoreList),
		parallelism: opts.Parallelism,
	}

	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.parallelism < 1 {
		s.parallelism = 1
	}

	return s
}

// Sync runs one pass. Missing roots are created first. The first error
// aborts the pass; the actions applied until then are still returned.
func (s *Synchronizer) Sync(source, replica string) ([]model.Action, error) {
	absSrc, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}
	absDst, err := filepath.Abs(replica)
	if err != nil {
		return nil, fmt.Errorf("invalid replica path: %w", err)
	}

	if within(absSrc, absDst) || within(absDst, absSrc) {
		return nil, fmt.Errorf("%w: %s, %s", ErrNestedReplica, absSrc, absDst)
	}

	if err := s.ensureRoot(absDst); err != nil {
		return nil, err
	}
	if err := s.ensureRoot(absSrc); err != nil {
		return nil, err
	}

	p := &pass{Synchronizer: s}
	if s.parallelism > 1 {
		p.tokens = make(chan struct{}, s.parallelism-1)
	}

	err = p.syncDir(context.Background(), absSrc, absDst)
	return p.actions, err
}

func (s *Synchronizer) ensureRoot(path string) error {
	created, err := util.EnsureDir(s.fs, path)
	if err != nil {
		return err
	}

	if created {
		s.log.Info("created root directory", zap.String("path", path))
	}

	return nil
}

type pass struct {
	*Synchronizer
	tokens chan struct{}

	mu      sync.Mutex
	actions []model.Action
}

func (p *pass) syncDir(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcEntries, err := p.list(src)
	if err != nil {
		return err
	}
	dstEntries, err := p.list(dst)
	if err != nil {
		return err
	}

	srcNames := mapset.NewThreadUnsafeSetFromMapKeys(srcEntries)
	dstNames := mapset.NewThreadUnsafeSetFromMapKeys(dstEntries)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// abort stops running children and reports the error that caused
	// the abort rather than the cancellation it triggered
	abort := func(err error) error {
		cancel()
		if werr := g.Wait(); werr != nil && errors.Is(err, context.Canceled) {
			return werr
		}
		return err
	}

	for _, name := range sorted(srcNames) {
		// a failed child already holds the error for g.Wait
		if gctx.Err() != nil {
			break
		}

		srcPath := filepath.Join(src, name)
		dstPath := filepath.Join(dst, name)
		srcInfo := srcEntries[name]
		dstInfo, exists := dstEntries[name]

		if !srcInfo.IsDir() && !srcInfo.Mode().IsRegular() {
			return abort(fmt.Errorf("%w: %s (%s)", ErrSpecialFile, srcPath, srcInfo.Mode()))
		}

		// a special file in the replica is replaced like any other kind mismatch
		if exists && !sameKind(srcInfo, dstInfo) {
			if err := p.remove(dstPath, dstInfo); err != nil {
				return abort(err)
			}
			exists = false
		}

		if srcInfo.IsDir() {
			if !exists {
				if err := p.fs.Mkdir(dstPath, 0755); err != nil {
					return abort(fmt.Errorf("failed to create directory %s: %w", dstPath, err))
				}
				p.record(model.Action{Type: model.ActionCreateDir, Path: dstPath})
			}

			if err := p.descend(g, gctx, srcPath, dstPath); err != nil {
				return abort(err)
			}
			continue
		}

		if err := p.syncFile(srcPath, dstPath, srcInfo, dstInfo, exists); err != nil {
			return abort(err)
		}
	}

	// children must finish before anything at this level is deleted
	if err := g.Wait(); err != nil {
		return err
	}

	for _, name := range sorted(dstNames.Difference(srcNames)) {
		if err := p.remove(filepath.Join(dst, name), dstEntries[name]); err != nil {
			return err
		}
	}

	return nil
}

// descend reconciles a subdirectory on its own goroutine when a token is
// free, inline otherwise.
func (p *pass) descend(g *errgroup.Group, ctx context.Context, src, dst string) error {
	select {
	case p.tokens <- struct{}{}:
		g.Go(func() error {
			defer func() { <-p.tokens }()
			return p.syncDir(ctx, src, dst)
		})
		return nil
	default:
		return p.syncDir(ctx, src, dst)
	}
}

func (p *pass) syncFile(src, dst string, srcInfo, dstInfo os.FileInfo, exists bool) error {
	reason := "new"

	if exists {
		changed, why, err := p.changed(src, dst, srcInfo, dstInfo)
		if err != nil {
			return err
		}
		if !changed {
			p.log.Debug("unchanged", zap.String("path", dst))
			return nil
		}
		reason = why
	}

	if err := util.CopyFile(p.fs, src, dst); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	p.record(model.Action{Type: model.ActionCopyFile, Src: src, Path: dst},
		zap.String("reason", reason),
		zap.String("size", humanize.Bytes(uint64(srcInfo.Size()))))

	return nil
}

// changed compares sizes first and digests only when the sizes agree.
func (p *pass) changed(src, dst string, srcInfo, dstInfo os.FileInfo) (bool, string, error) {
	if srcInfo.Size() != dstInfo.Size() {
		return true, "size", nil
	}

	srcSum, err := digest.File(p.fs, src)
	if err != nil {
		return false, "", err
	}
	dstSum, err := digest.File(p.fs, dst)
	if err != nil {
		return false, "", err
	}

	if srcSum != dstSum {
		return true, "content", nil
	}

	return false, "", nil
}

func (p *pass) remove(path string, info os.FileInfo) error {
	if info.IsDir() {
		if err := p.fs.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to delete directory %s: %w", path, err)
		}
		p.record(model.Action{Type: model.ActionDeleteDir, Path: path})
		return nil
	}

	if err := p.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	p.record(model.Action{Type: model.ActionDeleteFile, Path: path})
	return nil
}

// list returns the entries of dir keyed by name, ignored names excluded.
// Symlinks are resolved so an entry has the kind of its target.
func (p *pass) list(dir string) (map[string]os.FileInfo, error) {
	infos, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entries := make(map[string]os.FileInfo, len(infos))
	for _, info := range infos {
		name := info.Name()
		if p.ignore.match(name) {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			path := filepath.Join(dir, name)
			resolved, err := p.fs.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", path, err)
			}
			info = resolved
		}

		entries[name] = info
	}

	return entries, nil
}

func (p *pass) record(action model.Action, fields ...zap.Field) {
	p.mu.Lock()
	p.actions = append(p.actions, action)
	p.mu.Unlock()

	fields = append([]zap.Field{zap.String("path", action.Path)}, fields...)
	if action.Src != "" {
		fields = append(fields, zap.String("src", action.Src))
	}

	p.log.Info(message(action.Type), fields...)
}

func sameKind(a, b os.FileInfo) bool {
	return a.IsDir() == b.IsDir() && a.Mode().IsRegular() == b.Mode().IsRegular()
}

func message(t model.ActionType) string {
	switch t {
	case model.ActionCreateDir:
		return "created directory"
	case model.ActionCopyFile:
		return "copied file"
	case model.ActionDeleteFile:
		return "deleted file"
	case model.ActionDeleteDir:
		return "deleted directory"
	default:
		return strings.ToLower(string(t))
	}
}

func sorted(set mapset.Set[string]) []string {
	names := set.ToSlice()
	slices.Sort(names)
	return names
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
