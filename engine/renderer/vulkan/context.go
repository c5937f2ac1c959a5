package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32
	// Current generation of framebuffer size. If it does not match
	// FramebufferSizeLastGeneration, the swapchain must be rebuilt.
	FramebufferSizeGeneration uint64
	// The generation of the framebuffer when the swapchain was last created.
	FramebufferSizeLastGeneration uint64

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// Ops dispatches driver calls. Nil means the live Vulkan driver;
	// tests install a fake.
	Ops DeviceOps
}

func (vc *VulkanContext) ops() DeviceOps {
	if vc.Ops == nil {
		return liveOps{}
	}
	return vc.Ops
}

// FindMemoryIndex locates a device memory type matching the filter and the
// requested property flags, using the memory properties cached at device
// selection.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memory := vc.Device.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no device memory type matches filter 0x%x with flags 0x%x", typeFilter, propertyFlags)
}
