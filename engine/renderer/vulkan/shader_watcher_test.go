package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A reloaded material replaces its predecessor in the watch table; the old
// ID must not accumulate.
func TestShaderWatcherDropsReplacedMaterial(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	sw, err := NewShaderWatcher()
	require.NoError(t, err)
	defer sw.Close()
	require.NoError(t, sw.WatchMaterial(m))

	oldID := m.ID
	rebuilt, err := m.Rebuild(ctx)
	require.NoError(t, err)

	sw.UnwatchMaterial(oldID)
	require.NoError(t, sw.WatchMaterial(rebuilt))

	sw.mu.Lock()
	defer sw.mu.Unlock()
	assert.Len(t, sw.byPath, 2)
	for path, ids := range sw.byPath {
		assert.Equal(t, []uuid.UUID{rebuilt.ID}, ids, "stale registration for %s", path)
	}
}

func TestShaderWatcherUnwatchRemovesOrphanedPaths(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	sw, err := NewShaderWatcher()
	require.NoError(t, err)
	defer sw.Close()
	require.NoError(t, sw.WatchMaterial(m))

	sw.UnwatchMaterial(m.ID)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	assert.Empty(t, sw.byPath)
}
