package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var _ Client = &DirClient{}

// DirClient serves objects from a local directory laid out like the bucket.
type DirClient struct {
	root string
}

func NewDirClient(dir string) (*DirClient, error) {
	if dir == "" {
		return nil, errors.New("dir: directory required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dir: %s is not a directory", abs)
	}
	return &DirClient{root: abs}, nil
}

func (c *DirClient) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Backend: "dir", Key: key, Err: err}
	}
	rel := strings.TrimPrefix(path.Clean("/"+key), "/")
	f, err := os.Open(filepath.Join(c.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dir: %s: %w", key, ErrNotFound)
		}
		return nil, &TransportError{Backend: "dir", Key: key, Err: err}
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("dir: %s: %w", key, ErrNotFound)
	}
	return f, nil
}
