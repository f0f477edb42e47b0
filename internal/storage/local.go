package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// copyBufferSize bounds the memory used to stream a source to disk.
const copyBufferSize = 32 * 1024

// saveLocal streams src into path, creating parent directories. A FileSource
// that already points at path is left alone.
func saveLocal(path string, src Source) error {
	if fsrc, ok := src.(FileSource); ok && filepath.Clean(string(fsrc)) == filepath.Clean(path) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	rc, _, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(dst, rc, buf); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// underRoot joins root and the slash separated rel. Results equal to root or
// outside it are refused, so a delete can never remove the root.
func underRoot(root, rel string) (string, error) {
	root = filepath.Clean(root)
	p := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q under %s", ErrOutsideRoot, rel, root)
	}
	return p, nil
}

func localExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// deleteLocal removes a file or a whole directory. A missing path is not an
// error.
func deleteLocal(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
