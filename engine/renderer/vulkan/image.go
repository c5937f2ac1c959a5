package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// VulkanImage owns a device image, its backing memory and (optionally) a view.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

func ImageCreate(
	ctx *VulkanContext,
	width uint32,
	height uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	createView bool,
	viewAspectFlags vk.ImageAspectFlags,
) (*VulkanImage, error) {
	image := &VulkanImage{
		Width:  width,
		Height: height,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	handle, memory, res := ctx.ops().CreateImage(ctx, &imageCreateInfo, memoryFlags)
	if res != vk.Success {
		err := fmt.Errorf("failed to create image: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	image.Handle = handle
	image.Memory = memory

	if createView {
		view, err := ImageViewCreate(ctx, format, image.Handle, viewAspectFlags)
		if err != nil {
			ctx.ops().DestroyImage(ctx, image.Handle, image.Memory)
			return nil, err
		}
		image.View = view
	}
	return image, nil
}

func ImageViewCreate(ctx *VulkanContext, format vk.Format, image vk.Image, aspectFlags vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	view, res := ctx.ops().CreateImageView(ctx, &viewCreateInfo)
	if res != vk.Success {
		err := fmt.Errorf("failed to create image view: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

func (vi *VulkanImage) Destroy(ctx *VulkanContext) {
	if vi.View != vk.NullImageView {
		ctx.ops().DestroyImageView(ctx, vi.View)
		vi.View = vk.NullImageView
	}
	ctx.ops().DestroyImage(ctx, vi.Handle, vi.Memory)
	vi.Handle = vk.NullImage
	vi.Memory = vk.NullDeviceMemory
}
