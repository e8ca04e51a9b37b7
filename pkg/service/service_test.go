package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sepich/image-cache/pkg/cache"
	"github.com/sepich/image-cache/pkg/fetch"
	"github.com/sepich/image-cache/pkg/model"
	"github.com/sepich/image-cache/pkg/render"
	"github.com/sepich/image-cache/pkg/storage"
	"github.com/sepich/image-cache/pkg/transform"
	"github.com/sepich/image-cache/pkg/transform/transformtest"
)

type countingStore struct {
	objects map[string][]byte
	calls   atomic.Int32
}

func (s *countingStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	s.calls.Add(1)
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fixture struct {
	service  *ImageService
	store    *countingStore
	cache    *cache.FileCache
	renderer *render.Renderer
	fallback string
	logs     *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fallback := filepath.Join(dir, "image-not-found.jpg")
	require.NoError(t, os.WriteFile(fallback, transformtest.JPEG(t, 300, 300), 0o644))

	store := &countingStore{objects: map[string][]byte{
		"a/b/c.jpg": transformtest.PNG(t, 1600, 1200),
	}}
	fileCache := &cache.FileCache{CacheDirectory: filepath.Join(dir, "cache")}
	tr := transform.NewPool(transform.NewImaging(0), 2)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	coordinator, err := fetch.New(fetch.Options{
		Cache:       fileCache,
		Client:      store,
		Transformer: tr,
		Logger:      logger,
	})
	require.NoError(t, err)
	renderer := render.New(tr, nil)

	return &fixture{
		service: &ImageService{
			Resolver: coordinator,
			Renderer: renderer,
			Fallback: &render.Fallback{Path: fallback},
			Logger:   logger,
		},
		store:    store,
		cache:    fileCache,
		renderer: renderer,
		fallback: fallback,
		logs:     hook,
	}
}

func (f *fixture) get(key model.LogicalKey, dims model.Dimensions) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.service.GetImage(context.Background(), &key, dims, false, rr)
	return rr
}

func assertJPEGResponse(t *testing.T, rr *httptest.ResponseRecorder, cacheStatus string) {
	t.Helper()
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.ContentTypeJPEG, rr.Header().Get(model.HeaderContentType))
	assert.Equal(t, strconv.Itoa(rr.Body.Len()), rr.Header().Get(model.HeaderContentLength))
	assert.Equal(t, cacheStatus, rr.Header().Get(model.HeaderCacheStatus))
	assert.Equal(t, proxiedBy, rr.Header().Get(model.HeaderProxiedBy))
}

func TestColdThenWarm(t *testing.T) {
	f := newFixture(t)
	key := model.LogicalKey{Folder: "a", Subfolder: "b", Name: "c.jpg"}

	rr := f.get(key, model.Dimensions{})
	assertJPEGResponse(t, rr, CacheMiss)
	assert.Equal(t, int32(1), f.store.calls.Load())
	assert.True(t, f.cache.Exists(key))
	// stored rendition is 800px wide, served at native size
	assert.Equal(t, 800, transformtest.DecodeJPEG(t, rr.Body.Bytes()).X)

	rr = f.get(key, model.Dimensions{})
	assertJPEGResponse(t, rr, CacheHit)
	assert.Equal(t, int32(1), f.store.calls.Load())
}

func TestResizeKeepsAspect(t *testing.T) {
	f := newFixture(t)
	key := model.LogicalKey{Folder: "a", Subfolder: "b", Name: "c.jpg"}

	rr := f.get(key, model.Dimensions{Width: 200})
	assertJPEGResponse(t, rr, CacheMiss)
	size := transformtest.DecodeJPEG(t, rr.Body.Bytes())
	assert.Equal(t, 200, size.X)
	assert.Equal(t, 150, size.Y)
}

func TestMissingObjectServesFallback(t *testing.T) {
	f := newFixture(t)
	key := model.LogicalKey{Folder: "a", Subfolder: "b", Name: "missing.jpg"}
	dims := model.Dimensions{Width: 100}

	rr := f.get(key, dims)
	assertJPEGResponse(t, rr, CacheFallback)

	want, err := f.renderer.Render(context.Background(), f.fallback, dims)
	require.NoError(t, err)
	assert.Equal(t, want.Body, rr.Body.Bytes())
	assert.False(t, f.cache.Exists(key))
	_, err = os.Stat(f.cache.PathFor(key))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidKeyServesFallback(t *testing.T) {
	f := newFixture(t)
	rr := f.get(model.LogicalKey{Folder: "..", Subfolder: "b", Name: "c.jpg"}, model.Dimensions{})
	assertJPEGResponse(t, rr, CacheFallback)
	assert.Equal(t, int32(0), f.store.calls.Load())
}

func TestCorruptCacheEntryServesFallback(t *testing.T) {
	f := newFixture(t)
	key := model.LogicalKey{Folder: "a", Subfolder: "b", Name: "c.jpg"}
	_, err := f.cache.Write(key, []byte("not an image"))
	require.NoError(t, err)

	rr := f.get(key, model.Dimensions{})
	assertJPEGResponse(t, rr, CacheFallback)
	assert.Equal(t, int32(0), f.store.calls.Load())
}

func TestBrokenFallbackIs500(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.fallback, []byte("not an image"), 0o644))

	rr := f.get(model.LogicalKey{Folder: "a", Subfolder: "b", Name: "missing.jpg"}, model.Dimensions{})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 0, rr.Body.Len())
}

func TestHead(t *testing.T) {
	f := newFixture(t)
	key := model.LogicalKey{Folder: "a", Subfolder: "b", Name: "c.jpg"}

	rr := httptest.NewRecorder()
	f.service.GetImage(context.Background(), &key, model.Dimensions{}, true, rr)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.ContentTypeJPEG, rr.Header().Get(model.HeaderContentType))
	assert.NotEmpty(t, rr.Header().Get(model.HeaderContentLength))
	assert.Equal(t, 0, rr.Body.Len())
}

type sharedResolver struct {
	path string
}

func (r *sharedResolver) Resolve(ctx context.Context, key model.LogicalKey) (*fetch.Resolution, error) {
	return &fetch.Resolution{Path: r.path, Source: fetch.SourceRemote, Shared: true}, nil
}

func TestServedImageLog(t *testing.T) {
	f := newFixture(t)
	key := model.LogicalKey{Folder: "a", Subfolder: "b", Name: "c.jpg"}

	rr := f.get(key, model.Dimensions{Width: 200})
	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "a/b/c.jpg", entry.Data["key"])
	assert.Equal(t, "200x0", entry.Data["dims"])
	assert.Equal(t, CacheMiss, entry.Data["cache"])
	assert.Equal(t, false, entry.Data["shared"])
	assert.Equal(t, rr.Body.Len(), entry.Data["bytes"])

	// a rendition filled by another request's fetch
	f.service.Resolver = &sharedResolver{path: f.cache.PathFor(key)}
	f.logs.Reset()
	rr = f.get(key, model.Dimensions{})
	assertJPEGResponse(t, rr, CacheMiss)
	entry = f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, true, entry.Data["shared"])
	assert.NotContains(t, entry.Data, "dims")
}
