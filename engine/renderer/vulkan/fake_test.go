package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// fakePipelineHandle is a non-null stand-in so Destroy's null-handle guard
// still routes through DestroyPipeline.
var fakePipelineSlot byte
var fakePipelineHandle = vk.Pipeline(unsafe.Pointer(&fakePipelineSlot))

// fakeOps implements DeviceOps without touching a driver. Handles it mints
// are zero values; identity-sensitive assertions go through the Go-side
// wrappers instead (fence waits record the *VulkanFence pointer).
type fakeOps struct {
	support     VulkanSwapchainSupportInfo
	imageCount  int
	formatProps map[vk.Format]vk.FormatProperties

	// Scripted results, consumed in order. Empty means vk.Success.
	acquireResults []vk.Result
	submitResults  []vk.Result
	presentResults []vk.Result

	nextAcquireIndex []uint32

	waited         []*VulkanFence
	resetFences    []*VulkanFence
	submitFences   []*VulkanFence
	presentedIndex []uint32

	semaphoresCreated int
	fencesCreated     int
	viewsCreated      int
	viewsDestroyed    int
	swapchainsCreated int
	deviceWaitIdles   int
	shaderModules     [][]uint32
	pipelineLayouts   []vk.PipelineLayoutCreateInfo
	pipelinesCreated  []vk.GraphicsPipelineCreateInfo
	pipelineBinds     int
	pushWrites        [][]byte

	// For each destroyed pipeline, the number of device idle waits seen up
	// to that point.
	pipelineDestroyIdleWaits []int
}

// defaultFakeSupport is a surface with the sentinel extent, a 2..0 image
// count range, the preferred sRGB format plus one other, and all three
// present modes.
func defaultFakeSupport() VulkanSwapchainSupportInfo {
	return VulkanSwapchainSupportInfo{
		Capabilities: vk.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  0,
			CurrentExtent:  vk.Extent2D{Width: ^uint32(0), Height: ^uint32(0)},
			MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []vk.SurfaceFormat{
			{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []vk.PresentMode{
			vk.PresentModeImmediate,
			vk.PresentModeMailbox,
			vk.PresentModeFifo,
		},
	}
}

func newFakeOps() *fakeOps {
	return &fakeOps{
		support:    defaultFakeSupport(),
		imageCount: 3,
		formatProps: map[vk.Format]vk.FormatProperties{
			vk.FormatD32SfloatS8Uint: {
				OptimalTilingFeatures: vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit),
			},
		},
	}
}

func newFakeContext(fake *fakeOps) *VulkanContext {
	return &VulkanContext{
		Ops: fake,
		Device: &VulkanDevice{
			GraphicsQueueIndex: 0,
			PresentQueueIndex:  0,
			TransferQueueIndex: 0,
		},
	}
}

func popResult(queue *[]vk.Result) vk.Result {
	if len(*queue) == 0 {
		return vk.Success
	}
	res := (*queue)[0]
	*queue = (*queue)[1:]
	return res
}

func (f *fakeOps) QuerySwapchainSupport(ctx *VulkanContext) (VulkanSwapchainSupportInfo, error) {
	return f.support, nil
}

func (f *fakeOps) CreateSwapchain(ctx *VulkanContext, info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result) {
	f.swapchainsCreated++
	return vk.NullSwapchain, vk.Success
}

func (f *fakeOps) DestroySwapchain(ctx *VulkanContext, handle vk.Swapchain) {}

func (f *fakeOps) SwapchainImages(ctx *VulkanContext, handle vk.Swapchain) ([]vk.Image, vk.Result) {
	return make([]vk.Image, f.imageCount), vk.Success
}

func (f *fakeOps) CreateImage(ctx *VulkanContext, info *vk.ImageCreateInfo, memoryFlags vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, vk.Result) {
	return vk.NullImage, vk.NullDeviceMemory, vk.Success
}

func (f *fakeOps) DestroyImage(ctx *VulkanContext, image vk.Image, memory vk.DeviceMemory) {}

func (f *fakeOps) CreateImageView(ctx *VulkanContext, info *vk.ImageViewCreateInfo) (vk.ImageView, vk.Result) {
	f.viewsCreated++
	return vk.NullImageView, vk.Success
}

func (f *fakeOps) DestroyImageView(ctx *VulkanContext, view vk.ImageView) {
	f.viewsDestroyed++
}

func (f *fakeOps) CreateSemaphore(ctx *VulkanContext) (vk.Semaphore, vk.Result) {
	f.semaphoresCreated++
	return vk.NullSemaphore, vk.Success
}

func (f *fakeOps) DestroySemaphore(ctx *VulkanContext, semaphore vk.Semaphore) {}

func (f *fakeOps) CreateFence(ctx *VulkanContext, signaled bool) (vk.Fence, vk.Result) {
	f.fencesCreated++
	return vk.NullFence, vk.Success
}

func (f *fakeOps) DestroyFence(ctx *VulkanContext, fence vk.Fence) {}

func (f *fakeOps) WaitForFence(ctx *VulkanContext, fence *VulkanFence, timeoutNs uint64) vk.Result {
	f.waited = append(f.waited, fence)
	return vk.Success
}

func (f *fakeOps) ResetFence(ctx *VulkanContext, fence *VulkanFence) vk.Result {
	f.resetFences = append(f.resetFences, fence)
	return vk.Success
}

func (f *fakeOps) AcquireNextImage(ctx *VulkanContext, handle vk.Swapchain, timeoutNs uint64, semaphore vk.Semaphore) (uint32, vk.Result) {
	var index uint32
	if len(f.nextAcquireIndex) > 0 {
		index = f.nextAcquireIndex[0]
		f.nextAcquireIndex = f.nextAcquireIndex[1:]
	}
	return index, popResult(&f.acquireResults)
}

func (f *fakeOps) QueueSubmit(ctx *VulkanContext, submit vk.SubmitInfo, fence *VulkanFence) vk.Result {
	res := popResult(&f.submitResults)
	if res == vk.Success {
		f.submitFences = append(f.submitFences, fence)
	}
	return res
}

func (f *fakeOps) QueuePresent(ctx *VulkanContext, present *vk.PresentInfo) vk.Result {
	if len(present.PImageIndices) > 0 {
		f.presentedIndex = append(f.presentedIndex, present.PImageIndices[0])
	}
	return popResult(&f.presentResults)
}

func (f *fakeOps) DeviceWaitIdle(ctx *VulkanContext) vk.Result {
	f.deviceWaitIdles++
	return vk.Success
}

func (f *fakeOps) FormatProperties(ctx *VulkanContext, format vk.Format) vk.FormatProperties {
	return f.formatProps[format]
}

func (f *fakeOps) CreateShaderModule(ctx *VulkanContext, code []uint32) (vk.ShaderModule, vk.Result) {
	f.shaderModules = append(f.shaderModules, code)
	return vk.NullShaderModule, vk.Success
}

func (f *fakeOps) DestroyShaderModule(ctx *VulkanContext, module vk.ShaderModule) {}

func (f *fakeOps) CreatePipelineLayout(ctx *VulkanContext, info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result) {
	f.pipelineLayouts = append(f.pipelineLayouts, *info)
	return vk.NullPipelineLayout, vk.Success
}

func (f *fakeOps) DestroyPipelineLayout(ctx *VulkanContext, layout vk.PipelineLayout) {}

func (f *fakeOps) CreateGraphicsPipeline(ctx *VulkanContext, info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result) {
	f.pipelinesCreated = append(f.pipelinesCreated, info)
	return fakePipelineHandle, vk.Success
}

func (f *fakeOps) DestroyPipeline(ctx *VulkanContext, pipeline vk.Pipeline) {
	f.pipelineDestroyIdleWaits = append(f.pipelineDestroyIdleWaits, f.deviceWaitIdles)
}

func (f *fakeOps) CmdBindPipeline(commandBuffer vk.CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	f.pipelineBinds++
}

func (f *fakeOps) CmdPushConstants(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	f.pushWrites = append(f.pushWrites, append([]byte(nil), data...))
}
