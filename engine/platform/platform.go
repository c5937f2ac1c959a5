package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/kiln-engine/kiln/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the native window and is the engine's only contact with
// the window system. It supplies the Vulkan layer with the surface, the
// framebuffer extent and the set of required instance extensions.
type Platform struct {
	Window *glfw.Window

	resizeFn func(width, height uint32)
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Startup(applicationName string, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(func(_ *glfw.Window, w int, h int) {
		if p.resizeFn != nil {
			p.resizeFn(uint32(w), uint32(h))
		}
	})

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// SetResizeCallback registers the function invoked whenever the
// framebuffer size changes.
func (p *Platform) SetResizeCallback(fn func(width, height uint32)) {
	p.resizeFn = fn
}

// PumpMessages processes pending window events. Returns false once the
// window has been asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// FramebufferExtent returns the current framebuffer size in pixels.
func (p *Platform) FramebufferExtent() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// GetRequiredExtensionNames lists the instance extensions the window
// system needs for surface creation.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}
