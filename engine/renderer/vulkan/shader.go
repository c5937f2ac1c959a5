package vulkan

import (
	"encoding/binary"
	"fmt"
	"os"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// loadShaderCode reads a compiled SPIR-V binary and returns it as the word
// slice Vulkan expects. The file must be non-empty and word-aligned.
func loadShaderCode(path string) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader file '%s': %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("shader file '%s' is empty", path)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("shader file '%s' is not valid SPIR-V: size %d is not word-aligned", path, len(raw))
	}

	code := make([]uint32, len(raw)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return code, nil
}

// VulkanShaderStage wraps a shader module together with the pipeline stage
// create info referencing it.
type VulkanShaderStage struct {
	Handle    vk.ShaderModule
	StageInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderStage loads a SPIR-V binary from path and creates the module for
// the given stage. The entry point is always "main".
func NewShaderStage(ctx *VulkanContext, path string, stageFlag vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	code, err := loadShaderCode(path)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	module, res := ctx.ops().CreateShaderModule(ctx, code)
	if res != vk.Success {
		err := fmt.Errorf("failed to create shader module for '%s': %s", path, VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	return &VulkanShaderStage{
		Handle: module,
		StageInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stageFlag,
			Module: module,
			PName:  VulkanSafeString("main"),
		},
	}, nil
}

func (s *VulkanShaderStage) Destroy(ctx *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		ctx.ops().DestroyShaderModule(ctx, s.Handle)
		s.Handle = vk.NullShaderModule
	}
}
