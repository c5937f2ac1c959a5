package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments: make([]vk.ImageView, len(attachments)),
		Renderpass:  renderpass,
	}
	copy(outFramebuffer.Attachments, attachments)

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

// FramebuffersForAttachments creates one framebuffer per swapchain image
// slot, combining the slot's view from each attachment in order. All
// attachments must be mutually compatible and carry the same image count.
func FramebuffersForAttachments(context *VulkanContext, renderpass *VulkanRenderpass, attachments []*Attachment) ([]*VulkanFramebuffer, error) {
	if len(attachments) == 0 {
		return nil, fmt.Errorf("at least one attachment is required")
	}

	first := attachments[0]
	for _, a := range attachments[1:] {
		if a.Props().ImageCount != first.Props().ImageCount {
			return nil, fmt.Errorf(
				"attachment image counts differ: %d vs %d",
				first.Props().ImageCount, a.Props().ImageCount)
		}
		extent := a.Props().Extent
		firstExtent := first.Props().Extent
		if extent.Width != firstExtent.Width || extent.Height != firstExtent.Height {
			return nil, fmt.Errorf(
				"attachment extents differ: %dx%d vs %dx%d",
				firstExtent.Width, firstExtent.Height, extent.Width, extent.Height)
		}
	}

	extent := first.Props().Extent
	imageCount := first.Props().ImageCount

	views := make([][]vk.ImageView, len(attachments))
	for i := range attachments {
		views[i] = attachments[i].ImageViews()
	}

	framebuffers := make([]*VulkanFramebuffer, 0, imageCount)
	for slot := uint32(0); slot < imageCount; slot++ {
		slotViews := make([]vk.ImageView, len(attachments))
		for i := range attachments {
			slotViews[i] = views[i][slot]
		}
		fb, err := FramebufferCreate(context, renderpass, extent.Width, extent.Height, slotViews)
		if err != nil {
			for _, created := range framebuffers {
				created.Destroy(context)
			}
			return nil, err
		}
		framebuffers = append(framebuffers, fb)
	}
	return framebuffers, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	vfb.Attachments = nil
	vfb.Handle = nil
	vfb.Renderpass = nil
}
