package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

type VulkanRenderPassState int

const (
	READY VulkanRenderPassState = iota
	RECORDING
	IN_RENDER_PASS
	RECORDING_ENDED
	SUBMITTED
	NOT_ALLOCATED
)

type VulkanRenderpass struct {
	Handle     vk.RenderPass
	X, Y, W, H float32
	R, G, B, A float32
	Depth      float32
	Stencil    uint32
	State      VulkanRenderPassState

	hasDepth bool
}

// RenderpassCreate builds a single-subpass render pass from the attachment
// uses, in order. Color uses become color references; at most one depth or
// depth-stencil use becomes the depth reference.
func RenderpassCreate(context *VulkanContext, uses []AttachmentUse, x, y, w, h, r, g, b, a, depth float32, stencil uint32) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{
		X:       x,
		Y:       y,
		W:       w,
		H:       h,
		R:       r,
		G:       g,
		B:       b,
		A:       a,
		Depth:   depth,
		Stencil: stencil,
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(uses))
	colorReferences := make([]vk.AttachmentReference, 0, len(uses))
	var depthReference *vk.AttachmentReference

	for i := range uses {
		description := uses[i].Description
		description.Deref()
		attachmentDescriptions = append(attachmentDescriptions, description)

		switch uses[i].Type {
		case AttachmentColor, AttachmentResolve:
			reference := vk.AttachmentReference{
				Attachment: uint32(i),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}
			reference.Deref()
			colorReferences = append(colorReferences, reference)
		case AttachmentDepth, AttachmentDepthStencil:
			if depthReference != nil {
				return nil, fmt.Errorf("render pass can use at most one depth attachment")
			}
			reference := vk.AttachmentReference{
				Attachment: uint32(i),
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			}
			reference.Deref()
			depthReference = &reference
			outRenderpass.hasDepth = true
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorReferences)),
		PColorAttachments:       colorReferences,
		PDepthStencilAttachment: depthReference,
	}
	subpass.Deref()

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	dependency.Deref()

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	renderpassCreateInfo.Deref()

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass); res != vk.Success {
		err := fmt.Errorf("failed to create render pass: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	outRenderpass.Handle = pRenderPass
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = nil
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, frameBuffer vk.Framebuffer) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: frameBuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{
				X: int32(vr.X),
				Y: int32(vr.Y),
			},
			Extent: vk.Extent2D{
				Width:  uint32(vr.W),
				Height: uint32(vr.H),
			},
		},
	}
	beginInfo.Deref()

	clearValues := make([]vk.ClearValue, 1, 2)
	clearValues[0].SetColor([]float32{vr.R, vr.G, vr.B, vr.A})
	if vr.hasDepth {
		var depthClear vk.ClearValue
		depthClear.SetDepthStencil(vr.Depth, vr.Stencil)
		clearValues = append(clearValues, depthClear)
	}

	beginInfo.ClearValueCount = uint32(len(clearValues))
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
