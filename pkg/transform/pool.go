package transform

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/sepich/image-cache/pkg/model"
)

// Pool bounds the number of transforms running at once.
type Pool struct {
	next Transformer
	sem  *semaphore.Weighted
}

var _ Transformer = &Pool{}

// NewPool wraps next; workers <= 0 means one per CPU.
func NewPool(next Transformer, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{next: next, sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Transform(ctx context.Context, src []byte, dims model.Dimensions) ([]byte, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.next.Transform(ctx, src, dims)
}
