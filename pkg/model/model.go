package model

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderCacheStatus   = "X-Cache"
	HeaderProxiedBy     = "X-Proxied-By"
	HeaderRequestID     = "X-Request-Id"

	ContentTypeJPEG = "image/jpeg"
)

var ErrInvalidKey = errors.New("invalid image key")

// LogicalKey identifies one image both in the remote bucket and in the local cache.
type LogicalKey struct {
	Folder    string // First path segment, e.g. a customer or account id.
	Subfolder string // Second path segment.
	Name      string // File name as requested by the client, e.g. c.jpg.
}

func (k LogicalKey) Validate() error {
	for _, seg := range []struct{ field, value string }{
		{"folder", k.Folder},
		{"subfolder", k.Subfolder},
		{"name", k.Name},
	} {
		if err := validateSegment(seg.value); err != nil {
			return fmt.Errorf("%w: %s %q %s", ErrInvalidKey, seg.field, seg.value, err.Error())
		}
	}
	return nil
}

func validateSegment(s string) error {
	switch {
	case s == "":
		return errors.New("is empty")
	case strings.HasPrefix(s, "."):
		return errors.New("starts with a dot")
	case strings.ContainsAny(s, "/\\\x00"):
		return errors.New("contains a separator")
	}
	return nil
}

// RelPath is the slash separated path shared by the remote object and the cache file.
func (k LogicalKey) RelPath() string {
	return path.Join(k.Folder, k.Subfolder, k.Name)
}

// RemoteKey returns the object key in the bucket. A non-empty objectName replaces
// the requested name, for buckets that store one object per folder/subfolder.
func (k LogicalKey) RemoteKey(objectName string) string {
	if objectName == "" {
		return k.RelPath()
	}
	return path.Join(k.Folder, k.Subfolder, objectName)
}

func (k LogicalKey) String() string {
	return k.RelPath()
}

// Dimensions of a rendition. Zero on an axis means unconstrained.
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) IsZero() bool {
	return d.Width == 0 && d.Height == 0
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}
