package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorProps(width, height, imageCount uint32) AttachmentProperties {
	return AttachmentProperties{
		Type:       AttachmentColor,
		Extent:     vk.Extent2D{Width: width, Height: height},
		Format:     vk.FormatB8g8r8a8Srgb,
		ImageCount: imageCount,
		Samples:    vk.SampleCount1Bit,
	}
}

func TestOwnedAttachmentCreatesOneViewPerImage(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	a, err := NewAttachment(ctx, colorProps(640, 480, 3), false, false)
	require.NoError(t, err)

	assert.Len(t, a.ImageViews(), 3)
	assert.Equal(t, 3, fake.viewsCreated)
}

func TestSwapchainAttachmentWrapsBorrowedImages(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	images := make([]vk.Image, 4)
	a, err := NewSwapchainAttachment(ctx, colorProps(640, 480, 4), images)
	require.NoError(t, err)

	assert.Len(t, a.ImageViews(), 4)
	assert.Equal(t, 4, fake.viewsCreated)

	// Borrowed slots destroy only the views, never the images.
	a.Destroy(ctx)
	assert.Equal(t, 4, fake.viewsDestroyed)
}

func TestSwapchainAttachmentRejectsWrongImageCount(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	_, err := NewSwapchainAttachment(ctx, colorProps(640, 480, 3), make([]vk.Image, 2))
	assert.Error(t, err)
}

func TestAttachmentAspectFlags(t *testing.T) {
	tests := []struct {
		attachmentType AttachmentType
		want           vk.ImageAspectFlags
	}{
		{AttachmentColor, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{AttachmentResolve, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{AttachmentDepth, vk.ImageAspectFlags(vk.ImageAspectDepthBit)},
		{AttachmentDepthStencil, vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)},
	}
	for _, tc := range tests {
		t.Run(tc.attachmentType.String(), func(t *testing.T) {
			props := AttachmentProperties{Type: tc.attachmentType}
			assert.Equal(t, tc.want, props.AspectFlags())
		})
	}
}

func TestAttachmentIsCompatible(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	base, err := NewAttachment(ctx, colorProps(640, 480, 2), false, false)
	require.NoError(t, err)

	same, err := NewAttachment(ctx, colorProps(640, 480, 2), false, false)
	require.NoError(t, err)

	// Compatibility ignores the attachment type: a depth target with the
	// same format, samples and extent is compatible.
	depthSameShape := AttachmentProperties{
		Type:       AttachmentDepth,
		Extent:     vk.Extent2D{Width: 640, Height: 480},
		Format:     vk.FormatB8g8r8a8Srgb,
		ImageCount: 2,
		Samples:    vk.SampleCount1Bit,
	}
	depth, err := NewAttachment(ctx, depthSameShape, false, false)
	require.NoError(t, err)

	assert.True(t, base.IsCompatible(base))
	assert.True(t, base.IsCompatible(same))
	assert.True(t, same.IsCompatible(base))
	assert.True(t, base.IsCompatible(depth))

	otherExtent, err := NewAttachment(ctx, colorProps(800, 600, 2), false, false)
	require.NoError(t, err)
	assert.False(t, base.IsCompatible(otherExtent))

	otherFormat := colorProps(640, 480, 2)
	otherFormat.Format = vk.FormatR8g8b8a8Unorm
	formatMismatch, err := NewAttachment(ctx, otherFormat, false, false)
	require.NoError(t, err)
	assert.False(t, base.IsCompatible(formatMismatch))

	otherSamples := colorProps(640, 480, 2)
	otherSamples.Samples = vk.SampleCount4Bit
	samplesMismatch, err := NewAttachment(ctx, otherSamples, false, false)
	require.NoError(t, err)
	assert.False(t, base.IsCompatible(samplesMismatch))
}

func TestAttachmentUseCarriesProperties(t *testing.T) {
	fake := newFakeOps()
	ctx := newFakeContext(fake)

	a, err := NewAttachment(ctx, colorProps(640, 480, 3), false, false)
	require.NoError(t, err)

	use := NewAttachmentUse(a, vk.AttachmentLoadOpClear, vk.AttachmentStoreOpStore,
		vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc)

	assert.Len(t, use.Views, 3)
	assert.Equal(t, AttachmentColor, use.Type)
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, use.Description.Format)
	assert.Equal(t, vk.AttachmentLoadOpClear, use.Description.LoadOp)
	assert.Equal(t, vk.AttachmentStoreOpStore, use.Description.StoreOp)
	assert.Equal(t, vk.ImageLayoutPresentSrc, use.Description.FinalLayout)
	assert.Equal(t, vk.AttachmentLoadOpDontCare, use.Description.StencilLoadOp)

	use.SetStencilOps(vk.AttachmentLoadOpClear, vk.AttachmentStoreOpStore)
	assert.Equal(t, vk.AttachmentLoadOpClear, use.Description.StencilLoadOp)
	assert.Equal(t, vk.AttachmentStoreOpStore, use.Description.StencilStoreOp)
}
