package engine

import (
	"errors"
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/config"
	"github.com/kiln-engine/kiln/engine/core"
	"github.com/kiln-engine/kiln/engine/platform"
	"github.com/kiln-engine/kiln/engine/renderer/vulkan"
)

// Engine owns the window, the renderer and the frame loop.
type Engine struct {
	cfg      *config.Config
	platform *platform.Platform
	renderer *vulkan.VulkanRenderer
	clock    *core.Clock
	metrics  *core.Metrics

	material      *vulkan.Material
	shaderWatcher *vulkan.ShaderWatcher

	lastTime time.Duration
	running  bool
}

func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		platform: p,
		clock:    core.NewClock(),
		metrics:  core.NewMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	core.SetLogLevel(e.cfg.Renderer.LogLevel)

	if err := e.platform.Startup(
		e.cfg.Application.Name,
		e.cfg.Application.Width,
		e.cfg.Application.Height); err != nil {
		return err
	}

	e.renderer = vulkan.New(e.platform, e.cfg.Renderer)
	e.platform.SetResizeCallback(e.renderer.Resized)

	if err := e.renderer.Initialize(
		e.cfg.Application.Name,
		e.cfg.Application.Width,
		e.cfg.Application.Height); err != nil {
		return err
	}

	material, err := vulkan.NewMaterial(e.renderer.Context(), vulkan.MaterialCreateInfo{
		ShadingProperties: vulkan.DefaultShadingProperties(),
		Shaders: vulkan.ShaderFilePaths{
			Vertex:   "shaders/shader.vert.spv",
			Fragment: "shaders/shader.frag.spv",
		},
		Samples:          vk.SampleCount1Bit,
		RenderPass:       e.renderer.MainRenderPass(),
		PushConstantSize: 128,
	})
	if err != nil {
		return err
	}
	e.material = material

	watcher, err := vulkan.NewShaderWatcher()
	if err != nil {
		core.LogWarn("shader hot reload disabled: %s", err)
	} else {
		e.shaderWatcher = watcher
		if err := watcher.WatchMaterial(e.material); err != nil {
			core.LogWarn("failed to watch material shaders: %s", err)
		}
	}

	core.LogInfo("Engine initialized.")
	return nil
}

// Run drives the frame loop until the window closes or Shutdown is called.
func (e *Engine) Run() error {
	e.running = true
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.running && e.platform.PumpMessages() {
		e.clock.Update()
		current := e.clock.Elapsed()
		delta := (current - e.lastTime).Seconds()
		e.lastTime = current

		e.drainShaderReloads()

		commandBuffer, err := e.renderer.BeginFrame()
		if err != nil {
			if errors.Is(err, core.ErrSwapchainRecreating) {
				continue
			}
			return err
		}

		e.material.BindToCommandBuffer(e.renderer.Context(), commandBuffer)
		push := vulkan.MeshPushConstants{}
		e.material.WritePushConstants(e.renderer.Context(), commandBuffer, push.Bytes())

		if err := e.renderer.EndFrame(); err != nil {
			return err
		}

		e.metrics.Update(delta)
	}

	e.running = false
	return nil
}

// drainShaderReloads rebuilds the material when its shader binaries changed
// on disk. Rebuild drains the device before destroying the old pipeline, so
// frames still in flight finish against it first.
func (e *Engine) drainShaderReloads() {
	if e.shaderWatcher == nil {
		return
	}
	rebuilt := false
	for {
		select {
		case id := <-e.shaderWatcher.Dirty():
			if id == e.material.ID {
				rebuilt = true
			}
		default:
			if !rebuilt {
				return
			}
			oldID := e.material.ID
			material, err := e.material.Rebuild(e.renderer.Context())
			if err != nil {
				core.LogError("shader reload failed, keeping previous pipeline: %s", err)
				return
			}
			e.material = material
			e.shaderWatcher.UnwatchMaterial(oldID)
			if err := e.shaderWatcher.WatchMaterial(e.material); err != nil {
				core.LogWarn("failed to rewatch material shaders: %s", err)
			}
			core.LogInfo("Material %s reloaded.", material.ID)
			return
		}
	}
}

func (e *Engine) Shutdown() error {
	e.running = false

	if e.shaderWatcher != nil {
		if err := e.shaderWatcher.Close(); err != nil {
			core.LogWarn("shader watcher close failed: %s", err)
		}
	}
	if e.material != nil {
		e.material.Destroy(e.renderer.Context())
		e.material = nil
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			return err
		}
	}
	e.platform.Shutdown()

	core.LogInfo("Shutting down. Last metrics: %.1f fps, %.2f ms/frame.", e.metrics.FPS(), e.metrics.FrameTime())
	return nil
}
