package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytes(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil))
	assert.Equal(t, HashBytes([]byte("apsa")), HashBytes([]byte("apsa")))
	assert.NotEqual(t, HashBytes([]byte("apsa")), HashBytes([]byte("aconex")))
	assert.Len(t, HashBytes([]byte("x")), 64)
}
