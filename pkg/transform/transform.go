// Package transform decodes, resizes and re-encodes images as JPEG.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/sepich/image-cache/pkg/model"
)

const (
	DefaultQuality   = 80
	DefaultMaxPixels = 50_000_000
)

var ErrDecode = errors.New("image decode failed")

// Transformer turns source image bytes into a JPEG of the requested dimensions.
type Transformer interface {
	Transform(ctx context.Context, src []byte, dims model.Dimensions) ([]byte, error)
}

type Imaging struct {
	Quality int
	Filter  imaging.ResampleFilter
	// MaxPixels rejects sources whose header declares more pixels than this,
	// before any bitmap is allocated. Zero disables the check.
	MaxPixels int
}

var _ Transformer = &Imaging{}

func NewImaging(quality int) *Imaging {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Imaging{Quality: quality, Filter: imaging.Lanczos, MaxPixels: DefaultMaxPixels}
}

// Transform resizes src:
//   - no dimensions: native size, re-encoded;
//   - one dimension: scaled to it, aspect ratio kept;
//   - both: scaled to cover the box and centre-cropped to it.
func (t *Imaging) Transform(ctx context.Context, src []byte, dims model.Dimensions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.MaxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > int64(t.MaxPixels) {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, t.MaxPixels)
		}
	}
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch {
	case dims.Width > 0 && dims.Height > 0:
		img = imaging.Fill(img, dims.Width, dims.Height, imaging.Center, t.Filter)
	case dims.Width > 0 || dims.Height > 0:
		img = imaging.Resize(img, dims.Width, dims.Height, t.Filter)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.Quality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrDecode, err)
	}
	return buf.Bytes(), nil
}
