package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ Client = &S3Client{}

type S3Client struct {
	bucket     string
	limit      int64
	client     *s3.Client
	downloader *manager.Downloader
}

func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket required")
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("Failed to load AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(options *s3.Options) {
		// objects are uploaded by third parties with checksums the SDK may not verify
		options.DisableLogOutputChecksumValidationSkipped = true
		if opts.Endpoint != "" {
			options.BaseEndpoint = aws.String(opts.Endpoint)
		}
		options.UsePathStyle = opts.PathStyle
	})
	// check access on startup
	_, err = client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &opts.Bucket,
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to access S3 bucket `%s`: %v", opts.Bucket, err)
	}

	return newS3Client(client, opts.Bucket, opts.MaxObjectBytes), nil
}

func newS3Client(client *s3.Client, bucket string, limit int64) *S3Client {
	return &S3Client{
		bucket: bucket,
		limit:  limit,
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = 4
		}),
	}
}

func (c *S3Client) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	buf := &cappedBuffer{WriteAtBuffer: manager.NewWriteAtBuffer(nil), limit: c.limit}
	_, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if buf.exceeded.Load() {
		return nil, &TransportError{Backend: "s3", Key: key, Err: fmt.Errorf("%w: more than %d bytes", ErrObjectTooLarge, c.limit)}
	}
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// cappedBuffer fails any write past limit bytes, which aborts the download
// before the rest of the object is buffered. limit <= 0 disables the cap.
type cappedBuffer struct {
	*manager.WriteAtBuffer
	limit    int64
	exceeded atomic.Bool
}

func (b *cappedBuffer) WriteAt(p []byte, off int64) (int, error) {
	if b.limit > 0 && off+int64(len(p)) > b.limit {
		b.exceeded.Store(true)
		return 0, ErrObjectTooLarge
	}
	return b.WriteAtBuffer.WriteAt(p, off)
}

func classifyS3Error(key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("s3: %s: %w", key, ErrNotFound)
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("s3: %s: %w", key, ErrNotFound)
	}
	return &TransportError{Backend: "s3", Key: key, Err: err}
}
