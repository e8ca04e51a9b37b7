package cache

import (
	"errors"
	"path/filepath"

	"github.com/sepich/image-cache/pkg/model"
)

var ErrWrite = errors.New("cache write failed")

// WriteError reports which cache file could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "cache write " + e.Path + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Is(tgt error) bool {
	return tgt == ErrWrite
}

// KeyToCacheName returns the path of the key relative to the cache directory
func KeyToCacheName(key model.LogicalKey) string {
	return filepath.Join(key.Folder, key.Subfolder, key.Name)
}
