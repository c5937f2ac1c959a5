package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// Vertex is the standard mesh vertex layout.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

func vertexBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}
}

func vertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Location: 0,
			Binding:  0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Position)),
		},
		{
			Location: 1,
			Binding:  0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
		},
		{
			Location: 2,
			Binding:  0,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.UV)),
		},
	}
}

// PipelineConfig aggregates every fixed-function state block a graphics
// pipeline is created from. Start from defaultPipelineConfig and overlay the
// material's shading properties rather than filling this in by hand.
type PipelineConfig struct {
	Viewport         vk.Viewport
	Scissor          vk.Rect2D
	InputAssembly    vk.PipelineInputAssemblyStateCreateInfo
	Rasterization    vk.PipelineRasterizationStateCreateInfo
	Multisample      vk.PipelineMultisampleStateCreateInfo
	ColorBlendAttach vk.PipelineColorBlendAttachmentState
	DepthStencil     vk.PipelineDepthStencilStateCreateInfo
	DynamicStates    []vk.DynamicState
	UseVertexInput   bool
	Stages           []vk.PipelineShaderStageCreateInfo
	Layout           vk.PipelineLayout
	RenderPass       vk.RenderPass
	Subpass          uint32
}

// defaultPipelineConfig is opaque triangle rendering with depth test and
// write enabled and dynamic viewport/scissor.
func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		InputAssembly: vk.PipelineInputAssemblyStateCreateInfo{
			SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology:               vk.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: vk.False,
		},
		Rasterization: vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			DepthClampEnable:        vk.False,
			RasterizerDiscardEnable: vk.False,
			PolygonMode:             vk.PolygonModeFill,
			LineWidth:               1.0,
			CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:               vk.FrontFaceCounterClockwise,
			DepthBiasEnable:         vk.False,
		},
		Multisample: vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			SampleShadingEnable:  vk.False,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1.0,
		},
		ColorBlendAttach: vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		},
		DepthStencil: vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       vk.True,
			DepthWriteEnable:      vk.True,
			DepthCompareOp:        vk.CompareOpLess,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
		},
		DynamicStates: []vk.DynamicState{
			vk.DynamicStateViewport,
			vk.DynamicStateScissor,
		},
		UseVertexInput: true,
	}
}

// applyShadingProperties overlays a material's shading choices onto the
// config.
func (cfg *PipelineConfig) applyShadingProperties(props MaterialShadingProperties) {
	cfg.InputAssembly.Topology = props.Topology
	cfg.Rasterization.PolygonMode = props.PolygonMode
	cfg.Rasterization.CullMode = props.CullMode
	cfg.Rasterization.LineWidth = props.LineWidth
	cfg.UseVertexInput = props.UseVertexInput
	if !props.EnableDepth {
		cfg.DepthStencil.DepthTestEnable = vk.False
		cfg.DepthStencil.DepthWriteEnable = vk.False
	}
}

// NewGraphicsPipeline assembles the fixed-function state blocks from cfg and
// creates the pipeline object.
func NewGraphicsPipeline(ctx *VulkanContext, cfg PipelineConfig) (vk.Pipeline, error) {
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{cfg.Viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{cfg.Scissor},
	}
	viewportState.Deref()

	rasterization := cfg.Rasterization
	rasterization.Deref()

	multisample := cfg.Multisample
	multisample.Deref()

	depthStencil := cfg.DepthStencil
	depthStencil.Deref()

	colorBlendAttach := cfg.ColorBlendAttach
	colorBlendAttach.Deref()

	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttach},
	}
	colorBlendState.Deref()

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(cfg.DynamicStates)),
		PDynamicStates:    cfg.DynamicStates,
	}
	dynamicState.Deref()

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if cfg.UseVertexInput {
		binding := vertexBindingDescription()
		binding.Deref()
		attributes := vertexAttributeDescriptions()
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{binding}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}
	vertexInput.Deref()

	inputAssembly := cfg.InputAssembly
	inputAssembly.Deref()

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(cfg.Stages)),
		PStages:             cfg.Stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              cfg.Layout,
		RenderPass:          cfg.RenderPass,
		Subpass:             cfg.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelineCreateInfo.Deref()

	pipeline, res := ctx.ops().CreateGraphicsPipeline(ctx, pipelineCreateInfo)
	if !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("failed to create graphics pipeline: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return vk.NullPipeline, err
	}

	core.LogDebug("Graphics pipeline created.")
	return pipeline, nil
}
