package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/kiln-engine/kiln/engine/core"
)

// MaterialShadingProperties are the fixed-function choices a material bakes
// into its pipeline.
type MaterialShadingProperties struct {
	Topology       vk.PrimitiveTopology
	PolygonMode    vk.PolygonMode
	CullMode       vk.CullModeFlags
	LineWidth      float32
	UseVertexInput bool
	EnableDepth    bool
}

// DefaultShadingProperties is opaque triangle rendering with depth enabled.
func DefaultShadingProperties() MaterialShadingProperties {
	return MaterialShadingProperties{
		Topology:       vk.PrimitiveTopologyTriangleList,
		PolygonMode:    vk.PolygonModeFill,
		CullMode:       vk.CullModeFlags(vk.CullModeBackBit),
		LineWidth:      1.0,
		UseVertexInput: true,
		EnableDepth:    true,
	}
}

// ShaderFilePaths names the compiled SPIR-V binaries a material is built
// from.
type ShaderFilePaths struct {
	Vertex   string
	Fragment string
}

// MaterialCreateInfo carries everything needed to compile a material's
// pipeline. PushConstantSize of zero means the material uses no push
// constants.
type MaterialCreateInfo struct {
	ShadingProperties    MaterialShadingProperties
	Shaders              ShaderFilePaths
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Samples              vk.SampleCountFlagBits
	RenderPass           vk.RenderPass
	Subpass              uint32
	PushConstantSize     uint32
}

// Material owns a compiled graphics pipeline plus the shader modules and
// layout behind it. The pipeline is immutable after creation; changing
// shading properties means creating a new material.
type Material struct {
	ID uuid.UUID

	createInfo     MaterialCreateInfo
	vertexStage    *VulkanShaderStage
	fragmentStage  *VulkanShaderStage
	pipelineLayout vk.PipelineLayout
	pipeline       vk.Pipeline
	descriptorSet  *DescriptorSet
}

// NewMaterial loads both shader stages and compiles the pipeline. Partial
// construction is cleaned up on failure.
func NewMaterial(ctx *VulkanContext, createInfo MaterialCreateInfo) (*Material, error) {
	m := &Material{
		ID:         uuid.New(),
		createInfo: createInfo,
	}

	var err error
	m.vertexStage, err = NewShaderStage(ctx, createInfo.Shaders.Vertex, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	m.fragmentStage, err = NewShaderStage(ctx, createInfo.Shaders.Fragment, vk.ShaderStageFragmentBit)
	if err != nil {
		m.Destroy(ctx)
		return nil, err
	}

	if err := m.createPipelineLayout(ctx); err != nil {
		m.Destroy(ctx)
		return nil, err
	}

	cfg := defaultPipelineConfig()
	cfg.applyShadingProperties(createInfo.ShadingProperties)
	cfg.Multisample.RasterizationSamples = createInfo.Samples
	cfg.Stages = []vk.PipelineShaderStageCreateInfo{
		m.vertexStage.StageInfo,
		m.fragmentStage.StageInfo,
	}
	cfg.Layout = m.pipelineLayout
	cfg.RenderPass = createInfo.RenderPass
	cfg.Subpass = createInfo.Subpass

	m.pipeline, err = NewGraphicsPipeline(ctx, cfg)
	if err != nil {
		m.Destroy(ctx)
		return nil, err
	}

	core.LogDebug("Material %s created from '%s' + '%s'.", m.ID, createInfo.Shaders.Vertex, createInfo.Shaders.Fragment)
	return m, nil
}

func (m *Material) createPipelineLayout(ctx *VulkanContext) error {
	layoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(m.createInfo.DescriptorSetLayouts)),
		PSetLayouts:    m.createInfo.DescriptorSetLayouts,
	}
	if m.createInfo.PushConstantSize > 0 {
		pushRange := vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       m.createInfo.PushConstantSize,
		}
		pushRange.Deref()
		layoutCreateInfo.PushConstantRangeCount = 1
		layoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{pushRange}
	}
	layoutCreateInfo.Deref()

	layout, res := ctx.ops().CreatePipelineLayout(ctx, &layoutCreateInfo)
	if !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("failed to create pipeline layout: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	m.pipelineLayout = layout
	return nil
}

// Rebuild compiles a replacement material from the same create info and
// retires this one. The device is drained first so no in-flight frame still
// references the old pipeline when it is destroyed. On failure the old
// material stays intact and usable.
func (m *Material) Rebuild(ctx *VulkanContext) (*Material, error) {
	replacement, err := NewMaterial(ctx, m.createInfo)
	if err != nil {
		return nil, err
	}
	if res := ctx.ops().DeviceWaitIdle(ctx); !VulkanResultIsSuccess(res) {
		replacement.Destroy(ctx)
		err := fmt.Errorf("device wait idle failed before material rebuild: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	m.Destroy(ctx)
	return replacement, nil
}

func (m *Material) PipelineLayout() vk.PipelineLayout {
	return m.pipelineLayout
}

func (m *Material) CreateInfo() MaterialCreateInfo {
	return m.createInfo
}

// BindToCommandBuffer binds the material's pipeline for subsequent draws.
func (m *Material) BindToCommandBuffer(ctx *VulkanContext, commandBuffer *VulkanCommandBuffer) {
	ctx.ops().CmdBindPipeline(commandBuffer.Handle, vk.PipelineBindPointGraphics, m.pipeline)
}

// WritePushConstants records data into the material's push constant range.
// The caller must keep len(data) within the size declared at creation.
func (m *Material) WritePushConstants(ctx *VulkanContext, commandBuffer *VulkanCommandBuffer, data []byte) {
	if len(data) == 0 {
		return
	}
	ctx.ops().CmdPushConstants(
		commandBuffer.Handle,
		m.pipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		0,
		data)
}

// SetDescriptorSet attaches a shared descriptor set, retaining it. Any
// previously attached set is released. Passing nil clears the association.
func (m *Material) SetDescriptorSet(set *DescriptorSet) {
	if m.descriptorSet != nil {
		m.descriptorSet.Release()
	}
	if set == nil {
		m.descriptorSet = nil
		return
	}
	m.descriptorSet = set.Retain()
}

func (m *Material) DescriptorSet() *DescriptorSet {
	return m.descriptorSet
}

func (m *Material) Destroy(ctx *VulkanContext) {
	if m.pipeline != vk.NullPipeline {
		ctx.ops().DestroyPipeline(ctx, m.pipeline)
		m.pipeline = vk.NullPipeline
	}
	if m.pipelineLayout != vk.NullPipelineLayout {
		ctx.ops().DestroyPipelineLayout(ctx, m.pipelineLayout)
		m.pipelineLayout = vk.NullPipelineLayout
	}
	if m.fragmentStage != nil {
		m.fragmentStage.Destroy(ctx)
		m.fragmentStage = nil
	}
	if m.vertexStage != nil {
		m.vertexStage.Destroy(ctx)
		m.vertexStage = nil
	}
	if m.descriptorSet != nil {
		m.descriptorSet.Release()
		m.descriptorSet = nil
	}
}

// MeshPushConstants is the per-draw data block for mesh rendering.
type MeshPushConstants struct {
	Transform    mgl32.Mat4
	NormalMatrix mgl32.Mat4
}

func (p *MeshPushConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}

// InterfacePushConstants is the per-draw data block for screen-space
// interface elements.
type InterfacePushConstants struct {
	Position       mgl32.Vec2
	Size           mgl32.Vec2
	TimeSinceHover float32
	TimeSinceClick float32
}

func (p *InterfacePushConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}

// DebugPrimitivePushConstants is the per-draw data block for debug lines and
// shapes.
type DebugPrimitivePushConstants struct {
	Transform mgl32.Mat4
	Color     mgl32.Vec4
}

func (p *DebugPrimitivePushConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}
