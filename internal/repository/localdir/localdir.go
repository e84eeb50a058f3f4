// Package localdir writes documents and images into a directory the user
// explicitly granted. The grant is a capability: nothing is written outside
// the granted root, and the handle is dropped as soon as the directory stops
// being writable.
package localdir

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/model"
)

var localLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	localLogger = l
}

// GrantName is the key the documents directory is persisted under.
const GrantName = "documents"

type Option func(*Store)

// WithAccessCheck replaces the write permission probe.
func WithAccessCheck(fn func(root string) error) Option {
	return func(s *Store) { s.access = fn }
}

// WithRevokeHook is called after the handle is discarded.
func WithRevokeHook(fn func(root, reason string)) Option {
	return func(s *Store) { s.onRevoke = fn }
}

// WithoutWatch disables the fsnotify watch on the granted root.
func WithoutWatch() Option {
	return func(s *Store) { s.watch = false }
}

type Store struct {
	grants   GrantStore
	access   func(root string) error
	onRevoke func(root, reason string)
	watch    bool

	mu      sync.Mutex
	root    string
	watcher *fsnotify.Watcher
}

func New(grants GrantStore, opts ...Option) *Store {
	s := &Store{
		grants: grants,
		access: writable,
		watch:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func writable(root string) error {
	if err := unix.Access(root, unix.W_OK|unix.X_OK); err != nil {
		return &fs.PathError{Op: "access", Path: root, Err: err}
	}
	return nil
}

// Restore reinstates a persisted grant. A grant whose directory vanished is
// forgotten rather than reported.
func (s *Store) Restore(ctx context.Context) error {
	root, err := s.grants.LoadGrant(GrantName)
	if err != nil {
		return backend.New(backend.Local, backend.KindOther, "restore", err)
	}
	if root == "" {
		return nil
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		localLogger.Warn().Str("root", root).Msg("Granted directory is gone, forgetting grant")
		return s.grants.DeleteGrant(GrantName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRootLocked(root)
	localLogger.Info().Str("root", root).Msg("Restored directory grant")
	return nil
}

// Grant makes dir the writable root. It must be an existing directory the
// process can write to.
func (s *Store) Grant(ctx context.Context, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return backend.New(backend.Local, backend.KindOther, "grant", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return backend.Classify(backend.Local, "grant", err)
	}
	if !info.IsDir() {
		return backend.Errorf(backend.Local, backend.KindNotFound, "grant", "%s is not a directory", root)
	}
	if err := s.access(root); err != nil {
		return backend.New(backend.Local, backend.KindPermissionDenied, "grant", err)
	}
	if err := s.grants.SaveGrant(GrantName, root); err != nil {
		return backend.New(backend.Local, backend.KindOther, "grant", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRootLocked(root)
	localLogger.Info().Str("root", root).Msg("Directory granted")
	return nil
}

// Revoke forgets the grant, both cached and persisted.
func (s *Store) Revoke() error {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	if root == "" {
		return s.grants.DeleteGrant(GrantName)
	}
	s.invalidate(root, "revoked")
	return nil
}

// Root returns the granted directory.
func (s *Store) Root() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root, s.root != ""
}

func (s *Store) setRootLocked(root string) {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.root = root
	if !s.watch {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		localLogger.Warn().Err(err).Msg("Cannot watch granted directory")
		return
	}
	if err := w.Add(root); err != nil {
		localLogger.Warn().Err(err).Str("root", root).Msg("Cannot watch granted directory")
		w.Close()
		return
	}
	s.watcher = w
	go s.watchRoot(w, root)
}

func (s *Store) watchRoot(w *fsnotify.Watcher, root string) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == root && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				s.invalidate(root, "directory "+strings.ToLower(ev.Op.String()))
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			localLogger.Warn().Err(err).Str("root", root).Msg("Watch error")
		}
	}
}

// invalidate drops the handle if it still points at root.
func (s *Store) invalidate(root, reason string) {
	s.mu.Lock()
	if s.root != root {
		s.mu.Unlock()
		return
	}
	s.root = ""
	if w := s.watcher; w != nil {
		s.watcher = nil
		go w.Close()
	}
	s.mu.Unlock()

	if err := s.grants.DeleteGrant(GrantName); err != nil {
		localLogger.Error().Err(err).Msg("Failed to forget grant")
	}
	localLogger.Warn().Str("root", root).Str("reason", reason).Msg("Directory handle discarded")
	if s.onRevoke != nil {
		s.onRevoke(root, reason)
	}
}

// handle returns the current root after checking it still exists, and when
// forWrite is set, that it is still writable.
func (s *Store) handle(op string, forWrite bool) (string, error) {
	root, ok := s.Root()
	if !ok {
		return "", backend.Errorf(backend.Local, backend.KindNoGrant, op, "no directory granted")
	}

	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()):
		s.invalidate(root, "directory missing")
		return "", backend.Errorf(backend.Local, backend.KindNoGrant, op, "granted directory %s no longer exists", root)
	case errors.Is(err, fs.ErrPermission):
		s.invalidate(root, "permission denied")
		return "", backend.New(backend.Local, backend.KindPermissionDenied, op, err)
	case err != nil:
		return "", backend.Classify(backend.Local, op, err)
	}

	if forWrite {
		if err := s.access(root); err != nil {
			s.invalidate(root, "permission denied")
			return "", backend.New(backend.Local, backend.KindPermissionDenied, op, err)
		}
	}
	return root, nil
}

func resolve(root, dir, name string) (rel string, abs string, err error) {
	cleanDir, err := model.CleanDir(dir)
	if err != nil {
		return "", "", err
	}
	cleanName, err := model.CleanName(name)
	if err != nil {
		return "", "", err
	}
	rel = path.Join(cleanDir, cleanName)
	return rel, filepath.Join(root, filepath.FromSlash(rel)), nil
}

func (s *Store) Exists(ctx context.Context, dir, name string) (model.FileInfo, error) {
	root, err := s.handle("exists", false)
	if err != nil {
		return model.FileInfo{}, err
	}
	rel, abs, err := resolve(root, dir, name)
	if err != nil {
		return model.FileInfo{}, backend.New(backend.Local, backend.KindOther, "exists", err)
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return model.FileInfo{Path: rel}, nil
	}
	if err != nil {
		return model.FileInfo{}, s.fail(root, "exists", err)
	}
	if info.IsDir() {
		return model.FileInfo{}, backend.Errorf(backend.Local, backend.KindOther, "exists", "%s is a directory", rel)
	}
	return model.FileInfo{Exists: true, Path: rel, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *Store) Read(ctx context.Context, dir, name string) ([]byte, error) {
	root, err := s.handle("read", false)
	if err != nil {
		return nil, err
	}
	_, abs, err := resolve(root, dir, name)
	if err != nil {
		return nil, backend.New(backend.Local, backend.KindOther, "read", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, s.fail(root, "read", err)
	}
	return data, nil
}

// Write stores data at dir/name below the root, creating directories one
// segment at a time, and returns the slash separated path it wrote.
func (s *Store) Write(ctx context.Context, dir, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backend.Classify(backend.Local, "write", err)
	}
	root, err := s.handle("write", true)
	if err != nil {
		return "", err
	}
	rel, abs, err := resolve(root, dir, name)
	if err != nil {
		return "", backend.New(backend.Local, backend.KindOther, "write", err)
	}

	if err := mkdirSegments(root, path.Dir(rel)); err != nil {
		return "", s.fail(root, "write", err)
	}
	if err := writeFileAtomic(abs, data, 0o644); err != nil {
		return "", s.fail(root, "write", err)
	}

	localLogger.Debug().Str("path", rel).Int("bytes", len(data)).Msg("Wrote file")
	return rel, nil
}

// fail classifies err and drops the handle on permission problems.
func (s *Store) fail(root, op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		s.invalidate(root, "permission denied")
		return backend.New(backend.Local, backend.KindPermissionDenied, op, err)
	}
	return backend.Classify(backend.Local, op, err)
}

func mkdirSegments(root, dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	cur := root
	for _, seg := range strings.Split(dir, "/") {
		cur = filepath.Join(cur, seg)
		err := os.Mkdir(cur, 0o755)
		if err == nil || errors.Is(err, fs.ErrExist) {
			if info, serr := os.Stat(cur); serr != nil {
				return serr
			} else if !info.IsDir() {
				return errors.Errorf("%s exists and is not a directory", cur)
			}
			continue
		}
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Close stops watching the granted root.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}
