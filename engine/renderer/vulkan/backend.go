package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/config"
	"github.com/kiln-engine/kiln/engine/core"
	"github.com/kiln-engine/kiln/engine/platform"
)

// VulkanRenderer drives the swapchain frame protocol: acquire, record,
// submit, present, and recreate when the surface invalidates.
type VulkanRenderer struct {
	platform    *platform.Platform
	FrameNumber uint64

	context         *VulkanContext
	swapchain       *VulkanSwapchain
	swapchainConfig SwapchainConfig
	mainRenderpass  *VulkanRenderpass
	depthAttachment *Attachment
	framebuffers    []*VulkanFramebuffer
	commandBuffers  []*VulkanCommandBuffer

	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32
	recreatingSwapchain     bool
	imageIndex              uint32

	debug bool
}

func New(p *platform.Platform, cfg config.RendererConfig) *VulkanRenderer {
	return &VulkanRenderer{
		platform: p,
		context: &VulkanContext{
			Allocator: nil,
		},
		swapchainConfig: SwapchainConfig{
			PresentMode:    PresentModePreferenceFromString(cfg.PresentMode),
			RequireStencil: cfg.RequireStencil,
		},
		debug: cfg.Validation,
	}
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("vulkan loader is unavailable")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vulkan: %s", err)
		return err
	}

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Kiln Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, vr.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	requiredLayers := []string{}
	if vr.debug {
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if runtime.GOOS == "darwin" {
			createInfo.Flags |= 1
		}
		if err := verifyValidationLayers(requiredLayers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed to create vulkan instance: %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan instance created.")

	if vr.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("failed to create debug report callback: %s", err)
			return err
		}
		vr.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		core.LogError("failed to create window surface: %s", err)
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	vr.context.Device = &VulkanDevice{}
	if err := DeviceCreate(vr.context); err != nil {
		return err
	}

	sc, err := SwapchainCreate(vr.context, vk.Extent2D{
		Width:  vr.context.FramebufferWidth,
		Height: vr.context.FramebufferHeight,
	}, vr.swapchainConfig, nil)
	if err != nil {
		return err
	}
	vr.swapchain = sc
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height

	if err := vr.createMainRenderTargets(); err != nil {
		return err
	}
	if err := vr.createCommandBuffers(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized.")
	return nil
}

// createMainRenderTargets builds the depth attachment, the main render pass
// and one framebuffer per swapchain image.
func (vr *VulkanRenderer) createMainRenderTargets() error {
	depthType := AttachmentDepth
	if vr.swapchainConfig.RequireStencil {
		depthType = AttachmentDepthStencil
	}
	depthAttachment, err := NewAttachment(
		vr.context,
		vr.swapchain.AttachmentProperties(depthType, vr.swapchain.DepthFormat),
		false,
		false)
	if err != nil {
		return err
	}
	vr.depthAttachment = depthAttachment

	colorUse := NewAttachmentUse(
		vr.swapchain.SwapchainAttachment(),
		vk.AttachmentLoadOpClear,
		vk.AttachmentStoreOpStore,
		vk.ImageLayoutUndefined,
		vk.ImageLayoutPresentSrc)
	depthUse := NewAttachmentUse(
		vr.depthAttachment,
		vk.AttachmentLoadOpClear,
		vk.AttachmentStoreOpDontCare,
		vk.ImageLayoutUndefined,
		vk.ImageLayoutDepthStencilAttachmentOptimal)

	rp, err := RenderpassCreate(
		vr.context,
		[]AttachmentUse{colorUse, depthUse},
		0, 0, float32(vr.swapchain.Extent.Width), float32(vr.swapchain.Extent.Height),
		0.0, 0.0, 0.2, 1.0,
		1.0,
		0)
	if err != nil {
		return err
	}
	vr.mainRenderpass = rp

	framebuffers, err := FramebuffersForAttachments(
		vr.context,
		vr.mainRenderpass,
		[]*Attachment{vr.swapchain.SwapchainAttachment(), vr.depthAttachment})
	if err != nil {
		return err
	}
	vr.framebuffers = framebuffers
	return nil
}

func (vr *VulkanRenderer) createCommandBuffers() error {
	vr.commandBuffers = make([]*VulkanCommandBuffer, vr.swapchain.ImageCount)
	for i := range vr.commandBuffers {
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		vr.commandBuffers[i] = cb
	}
	return nil
}

func (vr *VulkanRenderer) destroyMainRenderTargets() {
	for _, fb := range vr.framebuffers {
		fb.Destroy(vr.context)
	}
	vr.framebuffers = nil
	if vr.mainRenderpass != nil {
		vr.mainRenderpass.RenderpassDestroy(vr.context)
		vr.mainRenderpass = nil
	}
	if vr.depthAttachment != nil {
		vr.depthAttachment.Destroy(vr.context)
		vr.depthAttachment = nil
	}
}

// Resized records the new framebuffer size and bumps the generation so the
// next BeginFrame recreates the swapchain.
func (vr *VulkanRenderer) Resized(width, height uint32) {
	vr.cachedFramebufferWidth = width
	vr.cachedFramebufferHeight = height
	vr.context.FramebufferSizeGeneration++
	core.LogDebug("Resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
}

// BeginFrame acquires the next swapchain image and starts recording the
// frame's command buffer. core.ErrSwapchainRecreating means the frame should
// be skipped, not treated as a failure.
func (vr *VulkanRenderer) BeginFrame() (*VulkanCommandBuffer, error) {
	if vr.recreatingSwapchain {
		if res := vr.context.ops().DeviceWaitIdle(vr.context); !VulkanResultIsSuccess(res) {
			return nil, fmt.Errorf("device wait idle failed: %s", VulkanResultString(res))
		}
		return nil, core.ErrSwapchainRecreating
	}

	// The framebuffer changed since the swapchain was created.
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		if res := vr.context.ops().DeviceWaitIdle(vr.context); !VulkanResultIsSuccess(res) {
			return nil, fmt.Errorf("device wait idle failed: %s", VulkanResultString(res))
		}
		if err := vr.recreateSwapchain(); err != nil {
			return nil, err
		}
		return nil, core.ErrSwapchainRecreating
	}

	imageIndex, err := vr.swapchain.AcquireNextImage(vr.context)
	if err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			if err := vr.recreateSwapchain(); err != nil {
				return nil, err
			}
			return nil, core.ErrSwapchainRecreating
		}
		return nil, err
	}
	vr.imageIndex = imageIndex

	commandBuffer := vr.commandBuffers[vr.imageIndex]
	commandBuffer.Reset()
	if err := commandBuffer.Begin(false, false, false); err != nil {
		return nil, err
	}

	viewport := vk.Viewport{
		X:        0.0,
		Y:        float32(vr.context.FramebufferHeight),
		Width:    float32(vr.context.FramebufferWidth),
		Height:   -float32(vr.context.FramebufferHeight),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{
			Width:  vr.context.FramebufferWidth,
			Height: vr.context.FramebufferHeight,
		},
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	vr.mainRenderpass.W = float32(vr.context.FramebufferWidth)
	vr.mainRenderpass.H = float32(vr.context.FramebufferHeight)
	vr.mainRenderpass.RenderpassBegin(commandBuffer, vr.framebuffers[vr.imageIndex].Handle)

	return commandBuffer, nil
}

// EndFrame finishes recording, submits the frame and presents it. An
// out-of-date surface triggers recreation and reports the frame as skipped.
func (vr *VulkanRenderer) EndFrame() error {
	commandBuffer := vr.commandBuffers[vr.imageIndex]

	vr.mainRenderpass.RenderpassEnd(commandBuffer)
	if err := commandBuffer.End(); err != nil {
		return err
	}

	err := vr.swapchain.SubmitCommandBuffers(vr.context, []vk.CommandBuffer{commandBuffer.Handle}, vr.imageIndex)
	commandBuffer.UpdateSubmitted()
	vr.FrameNumber++

	if err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			if err := vr.recreateSwapchain(); err != nil {
				return err
			}
			return nil
		}
		return err
	}
	return nil
}

func (vr *VulkanRenderer) recreateSwapchain() error {
	if vr.recreatingSwapchain {
		core.LogDebug("recreateSwapchain called while already recreating, booting.")
		return nil
	}
	if vr.cachedFramebufferWidth == 0 && vr.context.FramebufferWidth == 0 {
		core.LogDebug("recreateSwapchain called with a zero-sized window, booting.")
		return nil
	}

	vr.recreatingSwapchain = true
	defer func() { vr.recreatingSwapchain = false }()

	if res := vr.context.ops().DeviceWaitIdle(vr.context); !VulkanResultIsSuccess(res) {
		return fmt.Errorf("device wait idle failed: %s", VulkanResultString(res))
	}

	if vr.cachedFramebufferWidth != 0 {
		vr.context.FramebufferWidth = vr.cachedFramebufferWidth
		vr.context.FramebufferHeight = vr.cachedFramebufferHeight
		vr.cachedFramebufferWidth = 0
		vr.cachedFramebufferHeight = 0
	}

	// The previous swapchain seeds the new one so the driver can reuse its
	// resources; it is destroyed only after the handoff.
	old := vr.swapchain
	sc, err := SwapchainCreate(vr.context, vk.Extent2D{
		Width:  vr.context.FramebufferWidth,
		Height: vr.context.FramebufferHeight,
	}, vr.swapchainConfig, old)
	if err != nil {
		return err
	}
	old.Destroy(vr.context)
	vr.swapchain = sc
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height

	vr.destroyMainRenderTargets()
	if err := vr.createMainRenderTargets(); err != nil {
		return err
	}

	for _, cb := range vr.commandBuffers {
		cb.Free(vr.context, vr.context.Device.GraphicsCommandPool)
	}
	if err := vr.createCommandBuffers(); err != nil {
		return err
	}

	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration
	core.LogInfo("Swapchain recreated (%dx%d).", sc.Extent.Width, sc.Extent.Height)
	return nil
}

// Context exposes the renderer's device context for resource creation.
func (vr *VulkanRenderer) Context() *VulkanContext {
	return vr.context
}

// Swapchain exposes the live swapchain for render pass setup.
func (vr *VulkanRenderer) Swapchain() *VulkanSwapchain {
	return vr.swapchain
}

// MainRenderPass returns the handle materials compile against.
func (vr *VulkanRenderer) MainRenderPass() vk.RenderPass {
	return vr.mainRenderpass.Handle
}

func (vr *VulkanRenderer) Shutdown() error {
	if res := vr.context.ops().DeviceWaitIdle(vr.context); !VulkanResultIsSuccess(res) {
		core.LogWarn("device wait idle failed during shutdown: %s", VulkanResultString(res))
	}

	for _, cb := range vr.commandBuffers {
		if cb.Handle != nil {
			cb.Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
	}
	vr.commandBuffers = nil

	vr.destroyMainRenderTargets()

	if vr.swapchain != nil {
		vr.swapchain.Destroy(vr.context)
		vr.swapchain = nil
	}

	DeviceDestroy(vr.context)

	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}
	if vr.debug && vr.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, nil)
	}
	vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
	vr.context.Instance = nil

	core.LogInfo("Vulkan renderer shut down.")
	return nil
}

func verifyValidationLayers(required []string) error {
	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res))
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res))
	}

	for _, name := range required {
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
			if name == vk.ToString(availableLayers[j].LayerName[:end+1]) {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
