package artifacts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"latdyn/internal/services"
)

// ErrLocked reports that another pipeline instance holds the directory lock.
var ErrLocked = errors.New("working directory is locked by another latdyn process")

// Dir is a task working directory.
type Dir struct {
	root string
}

// Open resolves path (empty means the current directory) and verifies it is a directory.
func Open(path string) (*Dir, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "artifacts", "open", abs, err)
		}
		return nil, fmt.Errorf("stat working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "artifacts", "open", abs+" is not a directory", nil)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string {
	return d.root
}

// Path joins name onto the directory.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// Exists reports whether name is a regular file in the directory.
func (d *Dir) Exists(name string) bool {
	info, err := os.Stat(d.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// WriteJSON serializes v to name atomically.
func (d *Dir) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')
	return d.WriteFile(name, data)
}

// ReadJSON decodes name into v. A missing file is reported as services.ErrNotFound.
func (d *Dir) ReadJSON(name string, v any) error {
	data, err := d.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return services.Wrap(services.ErrValidation, "artifacts", "decode", name, err)
	}
	return nil
}

// ReadFile returns the contents of name.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(d.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "artifacts", "read", name, err)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// WriteFile writes data to name through a temporary file and rename so
// readers never observe a partial artifact.
func (d *Dir) WriteFile(name string, data []byte) error {
	target := d.Path(name)
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(name)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Rename moves from to to inside the directory, replacing to.
func (d *Dir) Rename(from, to string) error {
	if err := os.Rename(d.Path(from), d.Path(to)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

// Remove deletes name; a missing file is not an error.
func (d *Dir) Remove(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Glob returns sorted base names matching pattern.
func (d *Dir) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(d.Path(pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

// WriteParameters writes one value per line in %.18e, the layout numpy's
// savetxt produces for a 1-D vector.
func (d *Dir) WriteParameters(name string, params []float64) error {
	var buf bytes.Buffer
	for _, p := range params {
		fmt.Fprintf(&buf, "%.18e\n", p)
	}
	return d.WriteFile(name, buf.Bytes())
}

// ReadParameters parses a whitespace-delimited parameter vector. Comment
// lines starting with # are skipped.
func (d *Dir) ReadParameters(name string) ([]float64, error) {
	data, err := d.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var out []float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "artifacts", "parse parameters", name, err)
			}
			out = append(out, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return out, nil
}

// Lock is an exclusive hold on a working directory.
type Lock struct {
	flock *flock.Flock
}

// Lock acquires the directory lock without blocking. It fails with ErrLocked
// when another process already holds it.
func (d *Dir) Lock() (*Lock, error) {
	lock := flock.New(d.Path(LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, d.root)
	}
	return &Lock{flock: lock}, nil
}

// Unlock releases the lock. Safe to call on nil.
func (l *Lock) Unlock() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
