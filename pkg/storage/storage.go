// Package storage fetches original images from the remote object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Client returns the raw bytes of one object. Implementations must be safe for
// concurrent use.
type Client interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

var (
	ErrNotFound       = errors.New("object not found")
	ErrTransport      = errors.New("object store transport error")
	ErrObjectTooLarge = errors.New("object exceeds size limit")
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// s3, gcs
	Bucket string
	// s3
	Region    string
	Endpoint  string
	PathStyle bool
	// gcs
	ProjectID string
	KeyFile   string
	// http
	BaseURL string
	Timeout time.Duration
	// dir
	Dir string

	// MaxObjectBytes lets a backend stop a download early. ReadAll enforces it regardless.
	MaxObjectBytes int64
}

func New(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(opts.Backend) {
	case "s3":
		return NewS3Client(ctx, opts)
	case "gcs":
		return NewGCSClient(ctx, opts)
	case "http":
		return NewHTTPClient(opts.BaseURL, opts.Timeout)
	case "dir":
		return NewDirClient(opts.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// ReadAll fetches key and reads at most limit bytes of it. limit <= 0 disables the check.
func ReadAll(ctx context.Context, c Client, key string, limit int64) ([]byte, error) {
	body, err := c.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r io.Reader = body
	if limit > 0 {
		r = io.LimitReader(body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &TransportError{Key: key, Err: err}
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &TransportError{Key: key, Err: fmt.Errorf("%w: more than %d bytes", ErrObjectTooLarge, limit)}
	}
	return data, nil
}
