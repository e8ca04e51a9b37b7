package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sepich/image-cache/pkg/model"
)

type FileCache struct {
	CacheDirectory string
}

var _ Store = &FileCache{}

func NewFileCache(dir string) (*FileCache, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileCache{CacheDirectory: abs}, nil
}

func (c *FileCache) PathFor(key model.LogicalKey) string {
	return filepath.Join(c.CacheDirectory, KeyToCacheName(key))
}

// Exists reports whether a readable regular file is cached for key.
// Any stat or open failure is a miss.
func (c *FileCache) Exists(key model.LogicalKey) bool {
	p := c.PathFor(key)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
