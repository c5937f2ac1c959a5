package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// DeviceOps is the seam between the resource/synchronization protocol and
// the Vulkan driver. Production code uses liveOps; tests install a fake so
// the swapchain and material paths run without a GPU.
//
// Fence waits and resets take the *VulkanFence wrapper rather than the raw
// handle so a fake can observe which fence gated which operation.
type DeviceOps interface {
	// QuerySwapchainSupport refreshes and returns the surface capability
	// data the swapchain derives its creation parameters from.
	QuerySwapchainSupport(ctx *VulkanContext) (VulkanSwapchainSupportInfo, error)
	CreateSwapchain(ctx *VulkanContext, info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result)
	DestroySwapchain(ctx *VulkanContext, handle vk.Swapchain)
	// SwapchainImages reads back the image handles the presentation engine
	// actually allocated. Their number may exceed the requested minimum.
	SwapchainImages(ctx *VulkanContext, handle vk.Swapchain) ([]vk.Image, vk.Result)

	CreateImage(ctx *VulkanContext, info *vk.ImageCreateInfo, memoryFlags vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, vk.Result)
	DestroyImage(ctx *VulkanContext, image vk.Image, memory vk.DeviceMemory)
	CreateImageView(ctx *VulkanContext, info *vk.ImageViewCreateInfo) (vk.ImageView, vk.Result)
	DestroyImageView(ctx *VulkanContext, view vk.ImageView)

	CreateSemaphore(ctx *VulkanContext) (vk.Semaphore, vk.Result)
	DestroySemaphore(ctx *VulkanContext, semaphore vk.Semaphore)
	CreateFence(ctx *VulkanContext, signaled bool) (vk.Fence, vk.Result)
	DestroyFence(ctx *VulkanContext, fence vk.Fence)
	WaitForFence(ctx *VulkanContext, fence *VulkanFence, timeoutNs uint64) vk.Result
	ResetFence(ctx *VulkanContext, fence *VulkanFence) vk.Result

	AcquireNextImage(ctx *VulkanContext, handle vk.Swapchain, timeoutNs uint64, semaphore vk.Semaphore) (uint32, vk.Result)
	QueueSubmit(ctx *VulkanContext, submit vk.SubmitInfo, fence *VulkanFence) vk.Result
	QueuePresent(ctx *VulkanContext, present *vk.PresentInfo) vk.Result
	// DeviceWaitIdle blocks until all queues drain. Required before
	// destroying resources an in-flight frame may still reference.
	DeviceWaitIdle(ctx *VulkanContext) vk.Result

	FormatProperties(ctx *VulkanContext, format vk.Format) vk.FormatProperties

	CreateShaderModule(ctx *VulkanContext, code []uint32) (vk.ShaderModule, vk.Result)
	DestroyShaderModule(ctx *VulkanContext, module vk.ShaderModule)
	CreatePipelineLayout(ctx *VulkanContext, info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result)
	DestroyPipelineLayout(ctx *VulkanContext, layout vk.PipelineLayout)
	CreateGraphicsPipeline(ctx *VulkanContext, info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result)
	DestroyPipeline(ctx *VulkanContext, pipeline vk.Pipeline)

	CmdBindPipeline(commandBuffer vk.CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline)
	CmdPushConstants(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
}

// liveOps forwards every call to the Vulkan driver.
type liveOps struct{}

func (liveOps) QuerySwapchainSupport(ctx *VulkanContext) (VulkanSwapchainSupportInfo, error) {
	var info VulkanSwapchainSupportInfo
	if err := DeviceQuerySwapchainSupport(ctx.Device.PhysicalDevice, ctx.Surface, &info); err != nil {
		return VulkanSwapchainSupportInfo{}, err
	}
	return info, nil
}

func (liveOps) CreateSwapchain(ctx *VulkanContext, info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result) {
	var handle vk.Swapchain
	res := vk.CreateSwapchain(ctx.Device.LogicalDevice, info, ctx.Allocator, &handle)
	return handle, res
}

func (liveOps) DestroySwapchain(ctx *VulkanContext, handle vk.Swapchain) {
	vk.DestroySwapchain(ctx.Device.LogicalDevice, handle, ctx.Allocator)
}

func (liveOps) SwapchainImages(ctx *VulkanContext, handle vk.Swapchain) ([]vk.Image, vk.Result) {
	var count uint32
	if res := vk.GetSwapchainImages(ctx.Device.LogicalDevice, handle, &count, nil); res != vk.Success {
		return nil, res
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(ctx.Device.LogicalDevice, handle, &count, images); res != vk.Success {
		return nil, res
	}
	return images, vk.Success
}

func (liveOps) CreateImage(ctx *VulkanContext, info *vk.ImageCreateInfo, memoryFlags vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, vk.Result) {
	var image vk.Image
	if res := vk.CreateImage(ctx.Device.LogicalDevice, info, ctx.Allocator, &image); res != vk.Success {
		return vk.NullImage, vk.NullDeviceMemory, res
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.Device.LogicalDevice, image, &requirements)
	requirements.Deref()

	memoryType, err := ctx.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
	if err != nil {
		core.LogError(err.Error())
		vk.DestroyImage(ctx.Device.LogicalDevice, image, ctx.Allocator)
		return vk.NullImage, vk.NullDeviceMemory, vk.ErrorOutOfDeviceMemory
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &allocInfo, ctx.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(ctx.Device.LogicalDevice, image, ctx.Allocator)
		return vk.NullImage, vk.NullDeviceMemory, res
	}
	if res := vk.BindImageMemory(ctx.Device.LogicalDevice, image, memory, 0); res != vk.Success {
		vk.FreeMemory(ctx.Device.LogicalDevice, memory, ctx.Allocator)
		vk.DestroyImage(ctx.Device.LogicalDevice, image, ctx.Allocator)
		return vk.NullImage, vk.NullDeviceMemory, res
	}
	return image, memory, vk.Success
}

func (liveOps) DestroyImage(ctx *VulkanContext, image vk.Image, memory vk.DeviceMemory) {
	if image != vk.NullImage {
		vk.DestroyImage(ctx.Device.LogicalDevice, image, ctx.Allocator)
	}
	if memory != vk.NullDeviceMemory {
		vk.FreeMemory(ctx.Device.LogicalDevice, memory, ctx.Allocator)
	}
}

func (liveOps) CreateImageView(ctx *VulkanContext, info *vk.ImageViewCreateInfo) (vk.ImageView, vk.Result) {
	var view vk.ImageView
	res := vk.CreateImageView(ctx.Device.LogicalDevice, info, ctx.Allocator, &view)
	return view, res
}

func (liveOps) DestroyImageView(ctx *VulkanContext, view vk.ImageView) {
	vk.DestroyImageView(ctx.Device.LogicalDevice, view, ctx.Allocator)
}

func (liveOps) CreateSemaphore(ctx *VulkanContext) (vk.Semaphore, vk.Result) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &info, ctx.Allocator, &semaphore)
	return semaphore, res
}

func (liveOps) DestroySemaphore(ctx *VulkanContext, semaphore vk.Semaphore) {
	vk.DestroySemaphore(ctx.Device.LogicalDevice, semaphore, ctx.Allocator)
}

func (liveOps) CreateFence(ctx *VulkanContext, signaled bool) (vk.Fence, vk.Result) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	res := vk.CreateFence(ctx.Device.LogicalDevice, &info, ctx.Allocator, &fence)
	return fence, res
}

func (liveOps) DestroyFence(ctx *VulkanContext, fence vk.Fence) {
	vk.DestroyFence(ctx.Device.LogicalDevice, fence, ctx.Allocator)
}

func (liveOps) WaitForFence(ctx *VulkanContext, fence *VulkanFence, timeoutNs uint64) vk.Result {
	return vk.WaitForFences(ctx.Device.LogicalDevice, 1, []vk.Fence{fence.Handle}, vk.True, timeoutNs)
}

func (liveOps) ResetFence(ctx *VulkanContext, fence *VulkanFence) vk.Result {
	return vk.ResetFences(ctx.Device.LogicalDevice, 1, []vk.Fence{fence.Handle})
}

func (liveOps) AcquireNextImage(ctx *VulkanContext, handle vk.Swapchain, timeoutNs uint64, semaphore vk.Semaphore) (uint32, vk.Result) {
	var imageIndex uint32
	res := vk.AcquireNextImage(ctx.Device.LogicalDevice, handle, timeoutNs, semaphore, vk.NullFence, &imageIndex)
	return imageIndex, res
}

func (liveOps) QueueSubmit(ctx *VulkanContext, submit vk.SubmitInfo, fence *VulkanFence) vk.Result {
	handle := vk.NullFence
	if fence != nil {
		handle = fence.Handle
	}
	return vk.QueueSubmit(ctx.Device.GraphicsQueue, 1, []vk.SubmitInfo{submit}, handle)
}

func (liveOps) QueuePresent(ctx *VulkanContext, present *vk.PresentInfo) vk.Result {
	return vk.QueuePresent(ctx.Device.PresentQueue, present)
}

func (liveOps) DeviceWaitIdle(ctx *VulkanContext) vk.Result {
	return vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
}

func (liveOps) FormatProperties(ctx *VulkanContext, format vk.Format) vk.FormatProperties {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(ctx.Device.PhysicalDevice, format, &properties)
	properties.Deref()
	return properties
}

func (liveOps) CreateShaderModule(ctx *VulkanContext, code []uint32) (vk.ShaderModule, vk.Result) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)) * 4,
		PCode:    code,
	}
	var module vk.ShaderModule
	res := vk.CreateShaderModule(ctx.Device.LogicalDevice, &info, ctx.Allocator, &module)
	return module, res
}

func (liveOps) DestroyShaderModule(ctx *VulkanContext, module vk.ShaderModule) {
	vk.DestroyShaderModule(ctx.Device.LogicalDevice, module, ctx.Allocator)
}

func (liveOps) CreatePipelineLayout(ctx *VulkanContext, info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result) {
	var layout vk.PipelineLayout
	res := vk.CreatePipelineLayout(ctx.Device.LogicalDevice, info, ctx.Allocator, &layout)
	return layout, res
}

func (liveOps) DestroyPipelineLayout(ctx *VulkanContext, layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, layout, ctx.Allocator)
}

func (liveOps) CreateGraphicsPipeline(ctx *VulkanContext, info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result) {
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		ctx.Device.LogicalDevice,
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{info},
		ctx.Allocator,
		pipelines)
	return pipelines[0], res
}

func (liveOps) DestroyPipeline(ctx *VulkanContext, pipeline vk.Pipeline) {
	vk.DestroyPipeline(ctx.Device.LogicalDevice, pipeline, ctx.Allocator)
}

func (liveOps) CmdBindPipeline(commandBuffer vk.CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(commandBuffer, bindPoint, pipeline)
}

func (liveOps) CmdPushConstants(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	vk.CmdPushConstants(commandBuffer, layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}
