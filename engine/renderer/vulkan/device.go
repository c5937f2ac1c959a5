package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// VulkanDevice bundles the physical/logical device pair with everything the
// resource layer consumes from it: queue family indices and handles, the
// cached surface support info and the graphics command pool.
type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

// VulkanSwapchainSupportInfo caches the surface capability queries the
// swapchain derives its creation parameters from.
type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

func DeviceCreate(ctx *VulkanContext) error {
	if err := selectPhysicalDevice(ctx); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// Do not create additional queues for shared indices.
	presentSharesGraphicsQueue := ctx.Device.GraphicsQueueIndex == ctx.Device.PresentQueueIndex
	transferSharesGraphicsQueue := ctx.Device.GraphicsQueueIndex == ctx.Device.TransferQueueIndex

	indices := []uint32{uint32(ctx.Device.GraphicsQueueIndex)}
	if !presentSharesGraphicsQueue {
		indices = append(indices, uint32(ctx.Device.PresentQueueIndex))
	}
	if !transferSharesGraphicsQueue {
		indices = append(indices, uint32(ctx.Device.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	deviceFeatures.SamplerAnisotropy = vk.True

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if portabilitySubsetRequired(ctx.Device.PhysicalDevice) {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(
		ctx.Device.PhysicalDevice,
		&deviceCreateInfo,
		ctx.Allocator,
		&ctx.Device.LogicalDevice); res != vk.Success {
		err := fmt.Errorf("failed to create logical device: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(
		ctx.Device.LogicalDevice,
		uint32(ctx.Device.GraphicsQueueIndex),
		0,
		&ctx.Device.GraphicsQueue)
	vk.GetDeviceQueue(
		ctx.Device.LogicalDevice,
		uint32(ctx.Device.PresentQueueIndex),
		0,
		&ctx.Device.PresentQueue)
	vk.GetDeviceQueue(
		ctx.Device.LogicalDevice,
		uint32(ctx.Device.TransferQueueIndex),
		0,
		&ctx.Device.TransferQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(ctx.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(
		ctx.Device.LogicalDevice,
		&poolCreateInfo,
		ctx.Allocator,
		&ctx.Device.GraphicsCommandPool); res != vk.Success {
		err := fmt.Errorf("failed to create graphics command pool: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(ctx *VulkanContext) {
	ctx.Device.GraphicsQueue = nil
	ctx.Device.PresentQueue = nil
	ctx.Device.TransferQueue = nil

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(
		ctx.Device.LogicalDevice,
		ctx.Device.GraphicsCommandPool,
		ctx.Allocator)

	core.LogInfo("Destroying logical device...")
	if ctx.Device.LogicalDevice != nil {
		vk.DestroyDevice(ctx.Device.LogicalDevice, ctx.Allocator)
		ctx.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	ctx.Device.PhysicalDevice = nil
	ctx.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	ctx.Device.GraphicsQueueIndex = -1
	ctx.Device.PresentQueueIndex = -1
	ctx.Device.TransferQueueIndex = -1
}

// DeviceQuerySwapchainSupport refreshes the cached surface capabilities,
// formats and present modes. Called at device selection and again before
// every swapchain recreation.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		err := fmt.Errorf("failed to get surface capabilities: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	supportInfo.Capabilities.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	if formatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats); res != vk.Success {
			err := fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res))
			core.LogError(err.Error())
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get surface present modes: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	if presentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes); res != vk.Success {
			err := fmt.Errorf("failed to get surface present modes: %s", VulkanResultString(res))
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

// FindSupportedFormat returns the first candidate, in order, whose format
// properties include the requested features for the given tiling.
func (vd *VulkanDevice) FindSupportedFormat(ctx *VulkanContext, candidates []vk.Format, tiling vk.ImageTiling, features vk.FormatFeatureFlagBits) (vk.Format, error) {
	for _, format := range candidates {
		properties := ctx.ops().FormatProperties(ctx, format)

		switch tiling {
		case vk.ImageTilingLinear:
			if vk.FormatFeatureFlagBits(properties.LinearTilingFeatures)&features == features {
				return format, nil
			}
		case vk.ImageTilingOptimal:
			if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&features == features {
				return format, nil
			}
		}
	}
	return vk.FormatUndefined, fmt.Errorf("no supported format among %d candidates", len(candidates))
}

func portabilitySubsetRequired(physicalDevice vk.PhysicalDevice) bool {
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &availableExtensionCount, nil); res != vk.Success {
		return false
	}
	if availableExtensionCount == 0 {
		return false
	}
	availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &availableExtensionCount, availableExtensions); res != vk.Success {
		return false
	}
	for i := range availableExtensions {
		availableExtensions[i].Deref()
		end := FindFirstZeroInByteArray(availableExtensions[i].ExtensionName[:])
		if vk.ToString(availableExtensions[i].ExtensionName[:end+1]) == "VK_KHR_portability_subset" {
			return true
		}
	}
	return false
}

func selectPhysicalDevice(ctx *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %s", VulkanResultString(res))
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %s", VulkanResultString(res))
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		SamplerAnisotropy:    true,
		DiscreteGPU:          true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	for i := range physicalDevices {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
		properties.Deref()

		features := vk.PhysicalDeviceFeatures{}
		vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
		features.Deref()

		memory := vk.PhysicalDeviceMemoryProperties{}
		vk.GetPhysicalDeviceMemoryProperties(physicalDevices[i], &memory)
		memory.Deref()

		queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{}
		if !physicalDeviceMeetsRequirements(
			physicalDevices[i],
			ctx.Surface,
			&properties,
			&features,
			&requirements,
			&queueInfo,
			&ctx.Device.SwapchainSupport) {
			continue
		}

		nameEnd := FindFirstZeroInByteArray(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", string(properties.DeviceName[:nameEnd]))
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		default:
			core.LogInfo("GPU type is Unknown.")
		}
		core.LogInfo(
			"Driver version: %d.%d.%d",
			vk.Version(properties.DriverVersion).Major(),
			vk.Version(properties.DriverVersion).Minor(),
			vk.Version(properties.DriverVersion).Patch(),
		)
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)

		ctx.Device.PhysicalDevice = physicalDevices[i]
		ctx.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		ctx.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		ctx.Device.TransferQueueIndex = queueInfo.TransferFamilyIndex
		ctx.Device.Properties = properties
		ctx.Device.Features = features
		ctx.Device.Memory = memory
		break
	}

	if ctx.Device.PhysicalDevice == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Physical device selected.")
	return nil
}

func physicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	surface vk.Surface,
	properties *vk.PhysicalDeviceProperties,
	features *vk.PhysicalDeviceFeatures,
	requirements *VulkanPhysicalDeviceRequirements,
	outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo,
	outSwapchainSupport *VulkanSwapchainSupportInfo,
) bool {
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.PresentFamilyIndex = -1
	outQueueInfo.ComputeFamilyIndex = -1
	outQueueInfo.TransferFamilyIndex = -1

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Prefer a dedicated transfer family: the fewer capabilities a family
	// advertises, the likelier it is a dedicated transfer queue.
	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		currentTransferScore := 0

		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
			currentTransferScore++
		}
		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueComputeBit != 0 {
			outQueueInfo.ComputeFamilyIndex = int32(i)
			currentTransferScore++
		}
		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueTransferBit != 0 {
			if currentTransferScore <= minTransferScore {
				minTransferScore = currentTransferScore
				outQueueInfo.TransferFamilyIndex = int32(i)
			}
		}

		var supportsPresent vk.Bool32 = vk.False
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return false
		}
		if supportsPresent == vk.True {
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
	}

	if (requirements.Graphics && outQueueInfo.GraphicsFamilyIndex == -1) ||
		(requirements.Present && outQueueInfo.PresentFamilyIndex == -1) ||
		(requirements.Compute && outQueueInfo.ComputeFamilyIndex == -1) ||
		(requirements.Transfer && outQueueInfo.TransferFamilyIndex == -1) {
		return false
	}

	core.LogDebug("Graphics Family Index: %d", outQueueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", outQueueInfo.PresentFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", outQueueInfo.TransferFamilyIndex)

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		return false
	}
	if len(outSwapchainSupport.Formats) < 1 || len(outSwapchainSupport.PresentModes) < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		var availableExtensionCount uint32
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, nil); res != vk.Success {
			return false
		}
		if availableExtensionCount != 0 {
			availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
			if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, availableExtensions); res != vk.Success {
				return false
			}
			for _, required := range requirements.DeviceExtensionNames {
				found := false
				for j := range availableExtensions {
					availableExtensions[j].Deref()
					end := FindFirstZeroInByteArray(availableExtensions[j].ExtensionName[:])
					if required == vk.ToString(availableExtensions[j].ExtensionName[:end+1]) {
						found = true
						break
					}
				}
				if !found {
					core.LogInfo("Required extension not found: '%s', skipping device.", required)
					return false
				}
			}
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return false
	}
	return true
}
