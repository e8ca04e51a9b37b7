package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name  string
		key   LogicalKey
		valid bool
	}{
		{name: "plain", key: LogicalKey{"a", "b", "c.jpg"}, valid: true},
		{name: "dashes and dots inside", key: LogicalKey{"acct-1", "2024.05", "scan.v2.jpeg"}, valid: true},
		{name: "empty folder", key: LogicalKey{"", "b", "c.jpg"}},
		{name: "empty name", key: LogicalKey{"a", "b", ""}},
		{name: "dot dot", key: LogicalKey{"..", "b", "c.jpg"}},
		{name: "hidden name", key: LogicalKey{"a", "b", ".cache-123"}},
		{name: "slash", key: LogicalKey{"a", "b/c", "d.jpg"}},
		{name: "backslash", key: LogicalKey{"a", "b", "..\\c.jpg"}},
		{name: "nul", key: LogicalKey{"a", "b\x00", "c.jpg"}},
	}

	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			err := tC.key.Validate()
			if tC.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidKey), "got %v", err)
			}
		})
	}
}

func TestRemoteKey(t *testing.T) {
	key := LogicalKey{Folder: "a", Subfolder: "b", Name: "c.jpg"}

	assert.Equal(t, "a/b/c.jpg", key.RelPath())
	assert.Equal(t, "a/b/c.jpg", key.RemoteKey(""))
	assert.Equal(t, "a/b/receipt", key.RemoteKey("receipt"))
	assert.Equal(t, "a/b/c.jpg", key.String())
}

func TestDimensions(t *testing.T) {
	assert.True(t, Dimensions{}.IsZero())
	assert.False(t, Dimensions{Width: 10}.IsZero())
	assert.Equal(t, "10x0", Dimensions{Width: 10}.String())
}
