package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sepich/image-cache/pkg/model"
	"github.com/sepich/image-cache/pkg/transform/transformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagingTransform(t *testing.T) {
	src := transformtest.PNG(t, 400, 200)

	testCases := []struct {
		name string
		dims model.Dimensions
		want image.Point
	}{
		{name: "native", dims: model.Dimensions{}, want: image.Pt(400, 200)},
		{name: "width only", dims: model.Dimensions{Width: 100}, want: image.Pt(100, 50)},
		{name: "height only", dims: model.Dimensions{Height: 50}, want: image.Pt(100, 50)},
		{name: "upscale width", dims: model.Dimensions{Width: 800}, want: image.Pt(800, 400)},
		{name: "both crops to box", dims: model.Dimensions{Width: 100, Height: 100}, want: image.Pt(100, 100)},
	}

	tr := NewImaging(0)
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			out, err := tr.Transform(context.Background(), src, tC.dims)
			require.NoError(t, err)
			assert.Equal(t, tC.want, transformtest.DecodeJPEG(t, out))
		})
	}
}

func TestImagingTransformDecodeError(t *testing.T) {
	_, err := NewImaging(90).Transform(context.Background(), []byte("not an image"), model.Dimensions{Width: 10})
	assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
}

func TestImagingTransformCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewImaging(90).Transform(ctx, transformtest.JPEG(t, 10, 10), model.Dimensions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImagingTransformPixelLimit(t *testing.T) {
	tr := NewImaging(0)
	tr.MaxPixels = 100 * 100

	_, err := tr.Transform(context.Background(), transformtest.PNGHeader(t, 20000, 20000), model.Dimensions{Width: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
	assert.Contains(t, err.Error(), "20000x20000")

	_, err = tr.Transform(context.Background(), transformtest.PNG(t, 101, 100), model.Dimensions{})
	assert.True(t, errors.Is(err, ErrDecode), "got %v", err)

	out, err := tr.Transform(context.Background(), transformtest.PNG(t, 100, 100), model.Dimensions{Width: 10})
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 10), transformtest.DecodeJPEG(t, out))
}

func TestPNGHeaderDeclaresSize(t *testing.T) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(transformtest.PNGHeader(t, 20000, 20000)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 20000, cfg.Width)
	assert.Equal(t, 20000, cfg.Height)
}

func TestNewImagingQuality(t *testing.T) {
	assert.Equal(t, DefaultQuality, NewImaging(0).Quality)
	assert.Equal(t, DefaultQuality, NewImaging(101).Quality)
	assert.Equal(t, 60, NewImaging(60).Quality)
	assert.Equal(t, DefaultMaxPixels, NewImaging(60).MaxPixels)
}

type blockingTransformer struct {
	running  atomic.Int32
	maxSeen  atomic.Int32
	released chan struct{}
}

func (b *blockingTransformer) Transform(ctx context.Context, src []byte, dims model.Dimensions) ([]byte, error) {
	n := b.running.Add(1)
	defer b.running.Add(-1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	<-b.released
	return src, nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	inner := &blockingTransformer{released: make(chan struct{})}
	pool := NewPool(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Transform(context.Background(), []byte("x"), model.Dimensions{})
			assert.NoError(t, err)
		}()
	}

	assert.Eventually(t, func() bool { return inner.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(inner.released)
	wg.Wait()
	assert.Equal(t, int32(2), inner.maxSeen.Load())
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	inner := &blockingTransformer{released: make(chan struct{})}
	pool := NewPool(inner, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Transform(context.Background(), []byte("x"), model.Dimensions{})
	}()
	require.Eventually(t, func() bool { return inner.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Transform(ctx, []byte("x"), model.Dimensions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(inner.released)
	<-done
}
