package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source supplies the bytes of a queued write. Open may be called more than
// once; size is -1 when unknown.
type Source interface {
	Open() (rc io.ReadCloser, size int64, err error)
}

// FileSource reads from a local file path.
type FileSource string

func (p FileSource) Open() (io.ReadCloser, int64, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat source: %w", err)
	}
	return f, info.Size(), nil
}

func (p FileSource) String() string { return string(p) }

// BytesSource serves an in-memory buffer.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

// OpenerSource adapts a function such as (*multipart.FileHeader).Open.
type OpenerSource struct {
	Size int64
	Fn   func() (io.ReadCloser, error)
}

func (o OpenerSource) Open() (io.ReadCloser, int64, error) {
	rc, err := o.Fn()
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}
	size := o.Size
	if size == 0 {
		size = -1
	}
	return rc, size, nil
}
