package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
	kmath "github.com/kiln-engine/kiln/engine/math"
)

// MaxFramesInFlight caps how many frames the CPU may record ahead of the GPU.
const MaxFramesInFlight = 2

// PresentModePreference names the preferred presentation strategy. The
// preference is honored only when the surface supports it; FIFO is the
// guaranteed fallback.
type PresentModePreference int

const (
	PreferImmediate PresentModePreference = iota
	PreferMailbox
	PreferFifo
)

// PresentModePreferenceFromString maps a config value to a preference.
// Unknown values fall back to immediate.
func PresentModePreferenceFromString(s string) PresentModePreference {
	switch s {
	case "mailbox":
		return PreferMailbox
	case "fifo":
		return PreferFifo
	case "immediate":
		return PreferImmediate
	default:
		core.LogWarn("unknown present mode '%s', using immediate", s)
		return PreferImmediate
	}
}

func (p PresentModePreference) mode() vk.PresentMode {
	switch p {
	case PreferMailbox:
		return vk.PresentModeMailbox
	case PreferFifo:
		return vk.PresentModeFifo
	default:
		return vk.PresentModeImmediate
	}
}

// SwapchainConfig carries the tunables that survive recreation.
type SwapchainConfig struct {
	PresentMode    PresentModePreference
	RequireStencil bool
}

// VulkanSwapchain owns the presentation images, the per-frame synchronization
// primitives and the frame-slot cursor.
type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	DepthFormat vk.Format
	Extent      vk.Extent2D
	ImageCount  uint32

	config     SwapchainConfig
	attachment *Attachment

	// Indexed by frame slot (MaxFramesInFlight entries).
	imageAvailableSemaphores []vk.Semaphore
	renderFinishedSemaphores []vk.Semaphore
	inFlightFences           []*VulkanFence

	// Indexed by swapchain image. Holds the in-flight fence of the frame
	// that last used each image, nil until the image is first acquired.
	imagesInFlight []*VulkanFence

	currentFrame uint32
}

// SwapchainCreate builds a swapchain for the current surface state. Passing
// the previous swapchain hands its resources to the driver for reuse during
// recreation; the caller still destroys the previous swapchain afterwards.
func SwapchainCreate(ctx *VulkanContext, windowExtent vk.Extent2D, config SwapchainConfig, previous *VulkanSwapchain) (*VulkanSwapchain, error) {
	support, err := ctx.ops().QuerySwapchainSupport(ctx)
	if err != nil {
		return nil, err
	}
	ctx.Device.SwapchainSupport = support

	sc := &VulkanSwapchain{
		config: config,
	}

	sc.ImageFormat = chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes, config.PresentMode)
	sc.Extent = chooseSwapExtent(support.Capabilities, windowExtent)
	imageCount := chooseImageCount(support.Capabilities)

	depthFormat, err := findDepthFormat(ctx, config.RequireStencil)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	sc.DepthFormat = depthFormat

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          ctx.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      sc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	if ctx.Device.GraphicsQueueIndex != ctx.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(ctx.Device.GraphicsQueueIndex),
			uint32(ctx.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if previous != nil {
		swapchainCreateInfo.OldSwapchain = previous.Handle
	}

	handle, res := ctx.ops().CreateSwapchain(ctx, &swapchainCreateInfo)
	if res != vk.Success {
		err := fmt.Errorf("failed to create swapchain: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	sc.Handle = handle

	// The driver may allocate more images than the requested minimum.
	images, res := ctx.ops().SwapchainImages(ctx, sc.Handle)
	if res != vk.Success {
		ctx.ops().DestroySwapchain(ctx, sc.Handle)
		err := fmt.Errorf("failed to get swapchain images: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	sc.ImageCount = uint32(len(images))

	attachment, err := NewSwapchainAttachment(ctx, AttachmentProperties{
		Type:       AttachmentColor,
		Extent:     sc.Extent,
		Format:     sc.ImageFormat.Format,
		ImageCount: sc.ImageCount,
		Samples:    vk.SampleCount1Bit,
	}, images)
	if err != nil {
		ctx.ops().DestroySwapchain(ctx, sc.Handle)
		return nil, err
	}
	sc.attachment = attachment

	if err := sc.createSyncObjects(ctx); err != nil {
		sc.Destroy(ctx)
		return nil, err
	}

	core.LogInfo("Swapchain created with %d images (%dx%d).", sc.ImageCount, sc.Extent.Width, sc.Extent.Height)
	return sc, nil
}

func (sc *VulkanSwapchain) createSyncObjects(ctx *VulkanContext) error {
	sc.imageAvailableSemaphores = make([]vk.Semaphore, MaxFramesInFlight)
	sc.renderFinishedSemaphores = make([]vk.Semaphore, MaxFramesInFlight)
	sc.inFlightFences = make([]*VulkanFence, MaxFramesInFlight)
	sc.imagesInFlight = make([]*VulkanFence, sc.ImageCount)

	for i := 0; i < MaxFramesInFlight; i++ {
		semaphore, res := ctx.ops().CreateSemaphore(ctx)
		if res != vk.Success {
			return fmt.Errorf("failed to create image-available semaphore: %s", VulkanResultString(res))
		}
		sc.imageAvailableSemaphores[i] = semaphore

		semaphore, res = ctx.ops().CreateSemaphore(ctx)
		if res != vk.Success {
			return fmt.Errorf("failed to create render-finished semaphore: %s", VulkanResultString(res))
		}
		sc.renderFinishedSemaphores[i] = semaphore

		// Created signaled so the first wait on each slot returns at once.
		fence, err := NewFence(ctx, true)
		if err != nil {
			return err
		}
		sc.inFlightFences[i] = fence
	}
	return nil
}

// chooseSurfaceFormat prefers 8-bit BGRA sRGB with an sRGB nonlinear color
// space, otherwise the first reported format.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode returns the preferred mode when the surface supports it,
// otherwise FIFO, which every surface supports.
func choosePresentMode(modes []vk.PresentMode, preference PresentModePreference) vk.PresentMode {
	preferred := preference.mode()
	for _, mode := range modes {
		if mode == preferred {
			return mode
		}
	}
	return vk.PresentModeFifo
}

// chooseSwapExtent uses the surface's current extent unless the surface
// reports the width sentinel, in which case the window size is clamped to
// the surface's supported range.
func chooseSwapExtent(capabilities vk.SurfaceCapabilities, windowExtent vk.Extent2D) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  kmath.Clamp(windowExtent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: kmath.Clamp(windowExtent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// chooseImageCount requests one image above the driver minimum, capped by the
// maximum when the surface reports one (zero means unbounded).
func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

// findDepthFormat picks the first depth format the device supports for
// optimal-tiling attachments. Stencil-capable formats are always preferred;
// pure D32 is admitted only when stencil is not required.
func findDepthFormat(ctx *VulkanContext, requireStencil bool) (vk.Format, error) {
	candidates := []vk.Format{
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	if !requireStencil {
		candidates = append(candidates, vk.FormatD32Sfloat)
	}
	return ctx.Device.FindSupportedFormat(
		ctx,
		candidates,
		vk.ImageTilingOptimal,
		vk.FormatFeatureDepthStencilAttachmentBit)
}

// AcquireNextImage blocks until the current frame slot's fence signals, then
// asks the presentation engine for the next image. An out-of-date surface is
// reported as core.ErrSwapchainOutOfDate so the caller can recreate;
// suboptimal results still yield a usable image.
func (sc *VulkanSwapchain) AcquireNextImage(ctx *VulkanContext) (uint32, error) {
	if !sc.inFlightFences[sc.currentFrame].Wait(ctx, math.MaxUint64) {
		return 0, fmt.Errorf("in-flight fence wait failed for frame slot %d", sc.currentFrame)
	}

	imageIndex, res := ctx.ops().AcquireNextImage(
		ctx,
		sc.Handle,
		math.MaxUint64,
		sc.imageAvailableSemaphores[sc.currentFrame])
	switch res {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainOutOfDate
	default:
		err := fmt.Errorf("failed to acquire swapchain image: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return 0, err
	}
}

// SubmitCommandBuffers submits recorded work for imageIndex and queues the
// image for presentation. The frame slot cursor advances after the present
// call regardless of its result; submit failures leave the cursor alone so
// the slot can retry.
func (sc *VulkanSwapchain) SubmitCommandBuffers(ctx *VulkanContext, buffers []vk.CommandBuffer, imageIndex uint32) error {
	// If a previous frame is still rendering to this image, wait on its
	// fence before reusing the image.
	if sc.imagesInFlight[imageIndex] != nil {
		if !sc.imagesInFlight[imageIndex].Wait(ctx, math.MaxUint64) {
			return fmt.Errorf("image-in-flight fence wait failed for image %d", imageIndex)
		}
	}
	sc.imagesInFlight[imageIndex] = sc.inFlightFences[sc.currentFrame]

	if err := sc.inFlightFences[sc.currentFrame].Reset(ctx); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sc.imageAvailableSemaphores[sc.currentFrame]},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{sc.renderFinishedSemaphores[sc.currentFrame]},
	}

	if res := ctx.ops().QueueSubmit(ctx, submitInfo, sc.inFlightFences[sc.currentFrame]); res != vk.Success {
		err := fmt.Errorf("failed to submit command buffers: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sc.renderFinishedSemaphores[sc.currentFrame]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	res := ctx.ops().QueuePresent(ctx, &presentInfo)
	sc.currentFrame = (sc.currentFrame + 1) % MaxFramesInFlight

	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return core.ErrSwapchainOutOfDate
	default:
		err := fmt.Errorf("failed to present swapchain image: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
}

// SwapchainAttachment exposes the presentation images as an attachment for
// render pass and framebuffer construction.
func (sc *VulkanSwapchain) SwapchainAttachment() *Attachment {
	return sc.attachment
}

// AttachmentProperties describes a depth or auxiliary attachment matching
// this swapchain's images.
func (sc *VulkanSwapchain) AttachmentProperties(t AttachmentType, format vk.Format) AttachmentProperties {
	return AttachmentProperties{
		Type:       t,
		Extent:     sc.Extent,
		Format:     format,
		ImageCount: sc.ImageCount,
		Samples:    vk.SampleCount1Bit,
	}
}

func (sc *VulkanSwapchain) CurrentFrame() uint32 {
	return sc.currentFrame
}

func (sc *VulkanSwapchain) Config() SwapchainConfig {
	return sc.config
}

// Destroy tears down the sync objects, the image views and the swapchain
// handle. The caller must ensure the device is idle first.
func (sc *VulkanSwapchain) Destroy(ctx *VulkanContext) {
	for i := range sc.imageAvailableSemaphores {
		if sc.imageAvailableSemaphores[i] != vk.NullSemaphore {
			ctx.ops().DestroySemaphore(ctx, sc.imageAvailableSemaphores[i])
		}
	}
	for i := range sc.renderFinishedSemaphores {
		if sc.renderFinishedSemaphores[i] != vk.NullSemaphore {
			ctx.ops().DestroySemaphore(ctx, sc.renderFinishedSemaphores[i])
		}
	}
	for i := range sc.inFlightFences {
		if sc.inFlightFences[i] != nil {
			sc.inFlightFences[i].Destroy(ctx)
		}
	}
	sc.imageAvailableSemaphores = nil
	sc.renderFinishedSemaphores = nil
	sc.inFlightFences = nil
	sc.imagesInFlight = nil

	if sc.attachment != nil {
		sc.attachment.Destroy(ctx)
		sc.attachment = nil
	}
	if sc.Handle != vk.NullSwapchain {
		ctx.ops().DestroySwapchain(ctx, sc.Handle)
		sc.Handle = vk.NullSwapchain
	}
}
