package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// VulkanFence wraps a driver fence together with its last known CPU-side
// state. A signaled fence is never waited on again until it is reset.
type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(ctx *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	handle, res := ctx.ops().CreateFence(ctx, createSignaled)
	if res != vk.Success {
		err := fmt.Errorf("failed to create fence: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = handle
	return fence, nil
}

func (vf *VulkanFence) Destroy(ctx *VulkanContext) {
	if vf.Handle != vk.NullFence {
		ctx.ops().DestroyFence(ctx, vf.Handle)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence signals or the timeout elapses. The wait is
// skipped when the fence is already known to be signaled.
func (vf *VulkanFence) Wait(ctx *VulkanContext, timeoutNs uint64) bool {
	if vf.IsSignaled {
		return true
	}

	result := ctx.ops().WaitForFence(ctx, vf, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return true
	case vk.Timeout:
		core.LogWarn("fence wait timed out")
	case vk.ErrorDeviceLost:
		core.LogError("fence wait failed: %s", VulkanResultString(result))
	default:
		core.LogError("fence wait failed: %s", VulkanResultString(result))
	}
	return false
}

func (vf *VulkanFence) Reset(ctx *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := ctx.ops().ResetFence(ctx, vf); res != vk.Success {
		err := fmt.Errorf("failed to reset fence: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}
