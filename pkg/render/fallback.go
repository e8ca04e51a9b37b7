package render

import (
	"context"
	"fmt"
	"os"

	"github.com/sepich/image-cache/pkg/model"
)

// Fallback is the image served in place of anything that cannot be resolved.
type Fallback struct {
	Path string
}

// LoadFallback checks that path is a regular file the renderer can decode, so a
// broken fallback is reported at startup instead of on the first failed request.
func LoadFallback(ctx context.Context, r *Renderer, path string) (*Fallback, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("fallback image: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("fallback image: %s is not a regular file", path)
	}
	if _, err := r.Render(ctx, path, model.Dimensions{}); err != nil {
		return nil, fmt.Errorf("fallback image: %w", err)
	}
	return &Fallback{Path: path}, nil
}
