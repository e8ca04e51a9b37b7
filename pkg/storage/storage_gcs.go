package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcsBE "google.golang.org/api/storage/v1"
)

var _ Client = &GCSClient{}

// GCSClient reads objects from a Google Cloud Storage bucket.
type GCSClient struct {
	service *gcsBE.Service
	bucket  string
}

// NewGCSClient authenticates with the service account key file when one is
// configured and with application default credentials otherwise.
func NewGCSClient(ctx context.Context, opts Options) (*GCSClient, error) {
	if opts.Bucket == "" {
		return nil, errors.New("gcs: bucket required")
	}
	clientOpts := []option.ClientOption{option.WithScopes(gcsBE.DevstorageReadOnlyScope)}
	if opts.KeyFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.KeyFile))
	}
	if opts.ProjectID != "" {
		clientOpts = append(clientOpts, option.WithQuotaProject(opts.ProjectID))
	}
	service, err := gcsBE.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: unable to create storage service: %w", err)
	}
	if _, err := service.Buckets.Get(opts.Bucket).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("gcs: failed to access bucket `%s`: %w", opts.Bucket, err)
	}
	return &GCSClient{service: service, bucket: opts.Bucket}, nil
}

func (c *GCSClient) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.service.Objects.Get(c.bucket, key).Context(ctx).Download()
	if err != nil {
		return nil, classifyGCSError(key, err)
	}
	return resp.Body, nil
}

func classifyGCSError(key string, err error) error {
	var gcsErr *googleapi.Error
	if errors.As(err, &gcsErr) && gcsErr.Code == http.StatusNotFound {
		return fmt.Errorf("gcs: %s: %w", key, ErrNotFound)
	}
	return &TransportError{Backend: "gcs", Key: key, Err: err}
}
