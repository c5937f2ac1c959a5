package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// ApplicationConfig describes the window the engine opens.
type ApplicationConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// RendererConfig holds the policy knobs of the rendering-resource layer.
type RendererConfig struct {
	// PresentMode is the preferred presentation mode: "immediate",
	// "mailbox" or "fifo". FIFO is the fallback when the preference is
	// not supported by the surface.
	PresentMode string `toml:"present_mode"`
	// RequireStencil restricts depth-format selection to formats with a
	// stencil component.
	RequireStencil bool `toml:"require_stencil"`
	// Validation enables the Vulkan validation layers and debug reporting.
	Validation bool   `toml:"validation"`
	LogLevel   string `toml:"log_level"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Kiln",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			PresentMode:    "immediate",
			RequireStencil: false,
			Validation:     true,
			LogLevel:       "info",
		},
	}
}

// Load reads a TOML configuration file. A missing file is not an error:
// the defaults are returned instead. Unset fields fall back to their
// default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(blob, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Application.Width == 0 || cfg.Application.Height == 0 {
		return nil, fmt.Errorf("config: window size must be non-zero")
	}
	return cfg, nil
}
