package artifacts

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"latdyn/internal/services"
)

// ImportFrom copies the named files from another task directory into d with
// size and SHA-256 verification. Names already present in d are skipped. It
// returns the names actually copied.
func (d *Dir) ImportFrom(src string, names ...string) ([]string, error) {
	var missing []string
	for _, name := range names {
		if d.Exists(name) {
			continue
		}
		if _, err := os.Stat(filepath.Join(src, name)); err != nil {
			missing = append(missing, filepath.Join(src, name))
		}
	}
	if len(missing) > 0 {
		return nil, &services.MissingOutputError{Candidates: missing}
	}

	var copied []string
	for _, name := range names {
		if d.Exists(name) {
			continue
		}
		if err := copyVerified(filepath.Join(src, name), d.Path(name)); err != nil {
			return copied, fmt.Errorf("import %s: %w", name, err)
		}
		copied = append(copied, name)
	}
	return copied, nil
}

// copyVerified removes dst when the copy does not match src.
func copyVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHash := sha256.New()
	dstHash := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHash), io.TeeReader(in, srcHash))
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch")
	}
	return nil
}
