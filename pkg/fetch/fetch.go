// Package fetch resolves a logical key to a local file, filling the cache from the
// object store on a miss. Concurrent misses for one key share a single fetch.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sepich/image-cache/pkg/cache"
	"github.com/sepich/image-cache/pkg/logging"
	"github.com/sepich/image-cache/pkg/metrics"
	"github.com/sepich/image-cache/pkg/model"
	"github.com/sepich/image-cache/pkg/storage"
	"github.com/sepich/image-cache/pkg/transform"
)

const (
	DefaultWidth        = 800
	DefaultFetchTimeout = 30 * time.Second
)

type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)

// Resolution is a readable cache entry for a key.
type Resolution struct {
	Path   string
	Source Source
	// Shared is set when the entry was filled by another caller's fetch.
	Shared bool
}

type Options struct {
	Cache       cache.Store
	Client      storage.Client
	Transformer transform.Transformer

	Width          int    // width of the stored rendition, height follows the aspect ratio
	ObjectName     string // see model.LogicalKey.RemoteKey
	FetchTimeout   time.Duration
	MaxObjectBytes int64

	Logger   logrus.FieldLogger
	Observer metrics.Observer
}

type Coordinator struct {
	cache       cache.Store
	client      storage.Client
	transformer transform.Transformer

	width          int
	objectName     string
	fetchTimeout   time.Duration
	maxObjectBytes int64

	logger   logrus.FieldLogger
	observer metrics.Observer
	group    singleflight.Group
}

func New(opts Options) (*Coordinator, error) {
	if opts.Cache == nil || opts.Client == nil || opts.Transformer == nil {
		return nil, errors.New("fetch: cache, client and transformer are required")
	}
	c := &Coordinator{
		cache:          opts.Cache,
		client:         opts.Client,
		transformer:    opts.Transformer,
		width:          opts.Width,
		objectName:     opts.ObjectName,
		fetchTimeout:   opts.FetchTimeout,
		maxObjectBytes: opts.MaxObjectBytes,
		logger:         opts.Logger,
		observer:       opts.Observer,
	}
	if c.width <= 0 {
		c.width = DefaultWidth
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = DefaultFetchTimeout
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.observer == nil {
		c.observer = metrics.Nop
	}
	return c, nil
}

// Resolve returns the cached file for key, fetching and storing it first on a miss.
// Errors are *ResolveError; the caller is expected to fall back.
func (c *Coordinator) Resolve(ctx context.Context, key model.LogicalKey) (*Resolution, error) {
	start := time.Now()
	res, err := c.resolve(ctx, key)

	outcome := "hit"
	switch {
	case err != nil:
		outcome = Outcome(err)
		logging.FromContext(ctx, c.logger).
			WithFields(logging.StageFields(key, stageOf(err), err)).
			Warn("Failed to resolve image")
	case res.Source == SourceRemote:
		outcome = "miss"
	}
	c.observer.RecordResolve(outcome, time.Since(start))
	return res, err
}

func (c *Coordinator) resolve(ctx context.Context, key model.LogicalKey) (*Resolution, error) {
	if err := key.Validate(); err != nil {
		return nil, &ResolveError{Stage: StageInvalidKey, Key: key, Err: err}
	}
	if c.cache.Exists(key) {
		return &Resolution{Path: c.cache.PathFor(key), Source: SourceCache}, nil
	}

	// The fill runs detached from ctx so that one caller going away does not fail
	// the others waiting on the same key.
	fillCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.RelPath(), func() (interface{}, error) {
		return c.fill(fillCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, &ResolveError{Stage: StageFetch, Key: key, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Resolution)
		if r.Shared {
			res.Shared = true
			c.observer.RecordSharedFetch()
		}
		return &res, nil
	}
}

// fill is the single in-flight miss for key: fetch, transform, write.
func (c *Coordinator) fill(ctx context.Context, key model.LogicalKey) (*Resolution, error) {
	// a previous flight may have finished between Exists and DoChan
	if c.cache.Exists(key) {
		return &Resolution{Path: c.cache.PathFor(key), Source: SourceCache}, nil
	}

	raw, err := c.fetch(ctx, key)
	if err != nil {
		return nil, &ResolveError{Stage: StageFetch, Key: key, Err: err}
	}

	rendition, err := c.transformer.Transform(ctx, raw, model.Dimensions{Width: c.width})
	if err != nil {
		return nil, &ResolveError{Stage: StageTransform, Key: key, Err: err}
	}

	p, err := c.cache.Write(key, rendition)
	if err != nil {
		return nil, &ResolveError{Stage: StageCacheWrite, Key: key, Err: err}
	}

	logging.FromContext(ctx, c.logger).WithFields(logrus.Fields{
		"key":        key.String(),
		"remote_key": key.RemoteKey(c.objectName),
		"fetched":    len(raw),
		"stored":     len(rendition),
	}).Info("Cached image")
	return &Resolution{Path: p, Source: SourceRemote}, nil
}

func (c *Coordinator) fetch(ctx context.Context, key model.LogicalKey) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	raw, err := storage.ReadAll(ctx, c.client, key.RemoteKey(c.objectName), c.maxObjectBytes)
	c.observer.RecordFetch(time.Since(start), len(raw), err)
	return raw, err
}

func stageOf(err error) string {
	var re *ResolveError
	if errors.As(err, &re) {
		return string(re.Stage)
	}
	return "unknown"
}
