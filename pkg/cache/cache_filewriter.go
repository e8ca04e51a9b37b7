package cache

import (
	"os"
	"path/filepath"

	"github.com/sepich/image-cache/pkg/model"
)

const tempPattern = ".cache-*"

// Write stores data for key through a temporary file in the target directory that
// is renamed into place, so readers only ever see complete files.
func (c *FileCache) Write(key model.LogicalKey, data []byte) (string, error) {
	filePath := c.PathFor(key)
	fail := func(err error) (string, error) {
		return "", &WriteError{Path: filePath, Err: err}
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	file, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fail(err)
	}
	tempName := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempName)
		return fail(err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempName)
		return fail(err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempName)
		return fail(err)
	}
	// CreateTemp opens with 0600
	if err := os.Chmod(tempName, 0o644); err != nil {
		os.Remove(tempName)
		return fail(err)
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return fail(err)
	}

	return filePath, nil
}
