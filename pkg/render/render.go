// Package render produces the per-request JPEG from a cached rendition or the
// fallback asset.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sepich/image-cache/pkg/metrics"
	"github.com/sepich/image-cache/pkg/model"
	"github.com/sepich/image-cache/pkg/transform"
)

var (
	ErrSourceUnavailable = errors.New("render source unavailable")
	ErrDecodeFailed      = errors.New("render decode failed")
)

type Rendition struct {
	Body          []byte
	ContentType   string
	ContentLength int
}

type Renderer struct {
	Transformer transform.Transformer
	Observer    metrics.Observer
}

func New(t transform.Transformer, observer metrics.Observer) *Renderer {
	if observer == nil {
		observer = metrics.Nop
	}
	return &Renderer{Transformer: t, Observer: observer}
}

// Render reads sourcePath and encodes it as a JPEG of dims. A zero axis is unconstrained.
func (r *Renderer) Render(ctx context.Context, sourcePath string, dims model.Dimensions) (*Rendition, error) {
	start := time.Now()
	rendition, err := r.render(ctx, sourcePath, dims)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.observer().RecordRender(outcome, time.Since(start))
	return rendition, err
}

func (r *Renderer) render(ctx context.Context, sourcePath string, dims model.Dimensions) (*Rendition, error) {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	body, err := r.Transformer.Transform(ctx, src, dims)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, sourcePath, err)
	}
	return &Rendition{
		Body:          body,
		ContentType:   model.ContentTypeJPEG,
		ContentLength: len(body),
	}, nil
}

func (r *Renderer) observer() metrics.Observer {
	if r.Observer == nil {
		return metrics.Nop
	}
	return r.Observer
}
