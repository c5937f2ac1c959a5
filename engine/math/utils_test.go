package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(200), Clamp(uint32(100), 200, 1600))
	assert.Equal(t, uint32(1600), Clamp(uint32(3840), 200, 1600))
	assert.Equal(t, uint32(800), Clamp(uint32(800), 200, 1600))
	assert.Equal(t, 1.5, Clamp(1.5, 0.0, 2.0))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, 3, Max(2, 3))
	assert.Equal(t, 2, Min(2, 3))
	assert.Equal(t, "a", Min("a", "b"))
}
