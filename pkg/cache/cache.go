package cache

import (
	"github.com/sepich/image-cache/pkg/model"
)

// Store keeps one cached rendition per logical key on local disk. The presence of
// the file is the only record that a key is cached.
type Store interface {
	PathFor(key model.LogicalKey) string
	Exists(key model.LogicalKey) bool
	Write(key model.LogicalKey, data []byte) (string, error)
}
