package vulkan

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSpirv writes a little-endian word blob that passes the loader's
// alignment checks.
func writeSpirv(t *testing.T, dir, name string, words []uint32) string {
	t.Helper()
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func testShaderPaths(t *testing.T) ShaderFilePaths {
	t.Helper()
	dir := t.TempDir()
	return ShaderFilePaths{
		Vertex:   writeSpirv(t, dir, "shader.vert.spv", []uint32{0x07230203, 0x00010000, 0x0008000b}),
		Fragment: writeSpirv(t, dir, "shader.frag.spv", []uint32{0x07230203, 0x00010000, 0x0008000c}),
	}
}

func TestLoadShaderCode(t *testing.T) {
	dir := t.TempDir()
	path := writeSpirv(t, dir, "ok.spv", []uint32{0x07230203, 42})

	code, err := loadShaderCode(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 42}, code)
}

func TestLoadShaderCodeRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := loadShaderCode(filepath.Join(dir, "missing.spv"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.spv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = loadShaderCode(empty)
	assert.Error(t, err)

	unaligned := filepath.Join(dir, "unaligned.spv")
	require.NoError(t, os.WriteFile(unaligned, []byte{1, 2, 3}, 0o644))
	_, err = loadShaderCode(unaligned)
	assert.Error(t, err)
}

func TestNewMaterialCompilesBothStages(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
		PushConstantSize:  128,
	})
	require.NoError(t, err)

	assert.NotEqual(t, m.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Len(t, fake.shaderModules, 2)
	assert.Len(t, fake.pipelinesCreated, 1)

	// The push constant range spans both stages from offset zero.
	require.Len(t, fake.pipelineLayouts, 1)
	layout := fake.pipelineLayouts[0]
	require.Equal(t, uint32(1), layout.PushConstantRangeCount)
	pushRange := layout.PPushConstantRanges[0]
	assert.Equal(t, uint32(0), pushRange.Offset)
	assert.Equal(t, uint32(128), pushRange.Size)
	assert.Equal(t,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		pushRange.StageFlags)
}

func TestNewMaterialWithoutPushConstants(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	_, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	require.Len(t, fake.pipelineLayouts, 1)
	assert.Equal(t, uint32(0), fake.pipelineLayouts[0].PushConstantRangeCount)
}

func TestNewMaterialFailsOnMissingShader(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	_, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders: ShaderFilePaths{
			Vertex:   filepath.Join(t.TempDir(), "missing.vert.spv"),
			Fragment: filepath.Join(t.TempDir(), "missing.frag.spv"),
		},
	})
	assert.Error(t, err)
	assert.Empty(t, fake.pipelinesCreated)
}

func TestMaterialBindAndPushConstants(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
		PushConstantSize:  128,
	})
	require.NoError(t, err)

	cb := &VulkanCommandBuffer{State: COMMAND_BUFFER_STATE_RECORDING}
	m.BindToCommandBuffer(ctx, cb)
	assert.Equal(t, 1, fake.pipelineBinds)

	push := MeshPushConstants{}
	data := push.Bytes()
	require.Len(t, data, 128)
	m.WritePushConstants(ctx, cb, data)
	require.Len(t, fake.pushWrites, 1)
	assert.Len(t, fake.pushWrites[0], 128)
}

func TestMaterialShadingPropertiesOverlay(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	props := MaterialShadingProperties{
		Topology:       vk.PrimitiveTopologyLineList,
		PolygonMode:    vk.PolygonModeLine,
		CullMode:       vk.CullModeFlags(vk.CullModeNone),
		LineWidth:      2.0,
		UseVertexInput: false,
		EnableDepth:    false,
	}
	_, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: props,
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	require.Len(t, fake.pipelinesCreated, 1)
	info := fake.pipelinesCreated[0]
	assert.Equal(t, vk.PrimitiveTopologyLineList, info.PInputAssemblyState.Topology)
	assert.Equal(t, vk.PolygonModeLine, info.PRasterizationState.PolygonMode)
	assert.Equal(t, float32(2.0), info.PRasterizationState.LineWidth)
	assert.Equal(t, vk.Bool32(vk.False), info.PDepthStencilState.DepthTestEnable)
	assert.Equal(t, uint32(0), info.PVertexInputState.VertexBindingDescriptionCount)
}

func TestSharedDescriptorSetRefCounting(t *testing.T) {
	released := 0
	set := NewSharedDescriptorSet(vk.NullDescriptorSet, func() { released++ })

	set.Retain()
	set.Release()
	assert.Equal(t, 0, released)

	set.Release()
	assert.Equal(t, 1, released)
}

// The old pipeline may still be referenced by a frame in flight, so Rebuild
// must drain the device before destroying it.
func TestMaterialRebuildDrainsDeviceBeforeDestroy(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
		PushConstantSize:  128,
	})
	require.NoError(t, err)

	rebuilt, err := m.Rebuild(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, m.ID, rebuilt.ID)
	assert.Equal(t, m.CreateInfo(), rebuilt.CreateInfo())

	// Exactly the old pipeline was destroyed, and only after the idle wait.
	require.Len(t, fake.pipelineDestroyIdleWaits, 1)
	assert.Equal(t, 1, fake.pipelineDestroyIdleWaits[0])
	assert.Len(t, fake.pipelinesCreated, 2)
}

func TestMaterialRebuildFailureKeepsOldMaterial(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	paths := testShaderPaths(t)
	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           paths,
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	// The vertex shader vanished from disk; the rebuild must fail without
	// touching the existing pipeline.
	require.NoError(t, os.Remove(paths.Vertex))
	_, err = m.Rebuild(ctx)
	assert.Error(t, err)
	assert.Empty(t, fake.pipelineDestroyIdleWaits)
}

func TestMaterialClearsDescriptorSet(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	released := 0
	set := NewSharedDescriptorSet(vk.NullDescriptorSet, func() { released++ })
	m.SetDescriptorSet(set)
	set.Release()

	// Clearing releases the held reference and leaves nothing attached.
	m.SetDescriptorSet(nil)
	assert.Nil(t, m.DescriptorSet())
	assert.Equal(t, 1, released)

	m.Destroy(ctx)
	assert.Equal(t, 1, released)
}

func TestMaterialRetainsDescriptorSet(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	m, err := NewMaterial(ctx, MaterialCreateInfo{
		ShadingProperties: DefaultShadingProperties(),
		Shaders:           testShaderPaths(t),
		Samples:           vk.SampleCount1Bit,
	})
	require.NoError(t, err)

	released := 0
	set := NewSharedDescriptorSet(vk.NullDescriptorSet, func() { released++ })
	m.SetDescriptorSet(set)
	assert.Same(t, set, m.DescriptorSet())

	// The creator drops its reference; the material still holds one.
	set.Release()
	assert.Equal(t, 0, released)

	m.Destroy(ctx)
	assert.Equal(t, 1, released)
}
