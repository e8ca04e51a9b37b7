package fetch

import (
	"errors"

	"github.com/sepich/image-cache/pkg/model"
)

// Stage is the pipeline step a resolution failed in.
type Stage string

const (
	StageInvalidKey Stage = "invalid_key"
	StageFetch      Stage = "fetch"
	StageTransform  Stage = "transform"
	StageCacheWrite Stage = "cache_write"
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrTransformFailed  = errors.New("transform failed")
	ErrCacheWriteFailed = errors.New("cache write failed")
)

type ResolveError struct {
	Stage Stage
	Key   model.LogicalKey
	Err   error
}

func (e *ResolveError) Error() string {
	return "resolve " + e.Key.String() + ": " + string(e.Stage) + ": " + e.Err.Error()
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

func (e *ResolveError) Is(tgt error) bool {
	switch tgt {
	case ErrInvalidKey:
		return e.Stage == StageInvalidKey
	case ErrFetchFailed:
		return e.Stage == StageFetch
	case ErrTransformFailed:
		return e.Stage == StageTransform
	case ErrCacheWriteFailed:
		return e.Stage == StageCacheWrite
	}
	return false
}

// Outcome is the metrics label for err, "ok" when err is nil.
func Outcome(err error) string {
	var re *ResolveError
	if errors.As(err, &re) {
		if re.Stage == StageInvalidKey {
			return string(re.Stage)
		}
		return string(re.Stage) + "_failed"
	}
	if err != nil {
		return "error"
	}
	return "ok"
}
