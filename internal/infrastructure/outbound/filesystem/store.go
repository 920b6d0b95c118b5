// Package filesystem stores recorded scenarios on disk and watches scenario
// directories for changes.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
)

var _ ports.ScenarioStore = (*Store)(nil)

// tempPattern names in-flight atomic writes. The watcher ignores them.
const tempPattern = ".httpmocker-*.tmp"

// Store implements ports.ScenarioStore on a directory tree.
type Store struct {
	rootDir string
	locks   *KeyedMutex
}

// NewStore creates a store rooted at rootDir, creating the directory if needed.
func NewStore(rootDir string) (*Store, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &Store{rootDir: absRoot, locks: NewKeyedMutex()}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.rootDir }

// FS exposes the store as a read-only byte source.
func (s *Store) FS() fs.FS { return os.DirFS(s.rootDir) }

// ReadFile reads a file relative to the root.
func (s *Store) ReadFile(name string) ([]byte, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Lock serializes writers of one scenario path.
func (s *Store) Lock(name string) func() {
	return s.locks.Lock(path.Clean(name))
}

// ClaimBodyFile writes body to the smallest unused body file index next to
// scenarioPath. The index is claimed with O_EXCL so concurrent writers, even
// from other processes, never share a file.
func (s *Store) ClaimBodyFile(scenarioPath, ext string, body []byte) (string, error) {
	p, err := s.resolve(scenarioPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scenario directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	used, err := usedBodyIndexes(dir, base)
	if err != nil {
		return "", err
	}

	for n := 0; ; n++ {
		if used[n] {
			continue
		}
		name := BodyFileName(base, n, ext)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			used[n] = true
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create body file: %w", err)
		}
		if err := writeAndSync(f, body); err != nil {
			_ = os.Remove(filepath.Join(dir, name))
			return "", fmt.Errorf("failed to write body file %s: %w", name, err)
		}
		return name, nil
	}
}

// BodyFileName formats "<base>_body_<n><ext>".
func BodyFileName(base string, n int, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + "_body_" + strconv.Itoa(n) + ext
}

func usedBodyIndexes(dir, base string) (map[int]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario directory: %w", err)
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_body_(\d+)(\..*)?$`)
	used := make(map[int]bool)
	for _, e := range entries {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			used[n] = true
		}
	}
	return used, nil
}

// WriteAtomic writes data to a synced temp file in the target directory and
// renames it over name.
func (s *Store) WriteAtomic(name string, data []byte) error {
	target, err := s.resolve(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create scenario directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	syncDir(dir)
	return nil
}

// Remove deletes name. A missing file is not an error.
func (s *Store) Remove(name string) error {
	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// resolve maps a slash-separated relative name into the root, rejecting
// names that would escape it.
func (s *Store) resolve(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if !fs.ValidPath(clean) || clean == "." {
		return "", fmt.Errorf("path traversal denied: %q is outside root %s", name, s.rootDir)
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(clean)), nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir makes a rename durable. Not every platform supports syncing a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
