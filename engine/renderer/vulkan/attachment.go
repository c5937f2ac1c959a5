package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/kiln-engine/kiln/engine/core"
)

// AttachmentType classifies a render target by role. The type fixes which
// image aspects are relevant and which usage bits an owned attachment is
// created with.
type AttachmentType int

const (
	AttachmentColor AttachmentType = iota
	AttachmentResolve
	AttachmentDepth
	AttachmentDepthStencil
)

func (t AttachmentType) String() string {
	switch t {
	case AttachmentColor:
		return "color"
	case AttachmentResolve:
		return "resolve"
	case AttachmentDepth:
		return "depth"
	case AttachmentDepthStencil:
		return "depth-stencil"
	}
	return "unknown"
}

// AttachmentProperties is the immutable description an attachment is created
// from and compared by.
type AttachmentProperties struct {
	Type       AttachmentType
	Extent     vk.Extent2D
	Format     vk.Format
	ImageCount uint32
	Samples    vk.SampleCountFlagBits
}

// IsColor reports whether the attachment carries color data (resolve targets
// are color too).
func (p AttachmentProperties) IsColor() bool {
	return p.Type == AttachmentColor || p.Type == AttachmentResolve
}

// AspectFlags returns the image aspect implied by the attachment type.
func (p AttachmentProperties) AspectFlags() vk.ImageAspectFlags {
	switch p.Type {
	case AttachmentDepth:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case AttachmentDepthStencil:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

// attachmentImage is one per-frame image slot. Owned slots carry the image,
// its memory and the view; borrowed slots carry only a view over an image
// somebody else (the swapchain) owns.
type attachmentImage interface {
	view() vk.ImageView
	destroy(ctx *VulkanContext)
}

type ownedImage struct {
	image *VulkanImage
}

func (o *ownedImage) view() vk.ImageView { return o.image.View }

func (o *ownedImage) destroy(ctx *VulkanContext) {
	o.image.Destroy(ctx)
}

type borrowedImage struct {
	imageView vk.ImageView
}

func (b *borrowedImage) view() vk.ImageView { return b.imageView }

func (b *borrowedImage) destroy(ctx *VulkanContext) {
	ctx.ops().DestroyImageView(ctx, b.imageView)
	b.imageView = vk.NullImageView
}

// Attachment is a render target with one image slot per frame. Whether the
// slots own their images or merely view swapchain-owned ones is decided at
// construction and invisible to callers.
type Attachment struct {
	props  AttachmentProperties
	images []attachmentImage
}

// NewAttachment creates an attachment that allocates and owns its images.
// isInput and isSampled widen the usage so the images can additionally be
// read as subpass inputs or sampled in later passes.
func NewAttachment(ctx *VulkanContext, props AttachmentProperties, isInput, isSampled bool) (*Attachment, error) {
	var usage vk.ImageUsageFlags
	if props.IsColor() {
		usage = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	} else {
		usage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if isInput {
		usage |= vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit)
	}
	if isSampled {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}

	a := &Attachment{
		props:  props,
		images: make([]attachmentImage, 0, props.ImageCount),
	}
	for i := uint32(0); i < props.ImageCount; i++ {
		image, err := ImageCreate(
			ctx,
			props.Extent.Width,
			props.Extent.Height,
			props.Format,
			vk.ImageTilingOptimal,
			usage,
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			true,
			props.AspectFlags())
		if err != nil {
			a.Destroy(ctx)
			core.LogError("failed to create %s attachment image %d of %d", props.Type, i, props.ImageCount)
			return nil, err
		}
		a.images = append(a.images, &ownedImage{image: image})
	}
	return a, nil
}

// NewSwapchainAttachment wraps presentation-engine images in an attachment.
// Exactly one image per slot is expected; the images stay owned by the
// swapchain and only the views are created (and later destroyed) here.
func NewSwapchainAttachment(ctx *VulkanContext, props AttachmentProperties, images []vk.Image) (*Attachment, error) {
	if uint32(len(images)) != props.ImageCount {
		err := fmt.Errorf("attachment expects %d images, got %d", props.ImageCount, len(images))
		core.LogError(err.Error())
		return nil, err
	}

	a := &Attachment{
		props:  props,
		images: make([]attachmentImage, 0, props.ImageCount),
	}
	for i := range images {
		view, err := ImageViewCreate(ctx, props.Format, images[i], props.AspectFlags())
		if err != nil {
			a.Destroy(ctx)
			return nil, err
		}
		a.images = append(a.images, &borrowedImage{imageView: view})
	}
	return a, nil
}

func (a *Attachment) Props() AttachmentProperties {
	return a.props
}

// ImageViews returns the per-frame views in slot order. The slice is freshly
// allocated; callers may keep it across the attachment's lifetime but not
// past Destroy.
func (a *Attachment) ImageViews() []vk.ImageView {
	views := make([]vk.ImageView, len(a.images))
	for i := range a.images {
		views[i] = a.images[i].view()
	}
	return views
}

// IsCompatible reports whether two attachments can be combined in one
// framebuffer set: same format, sample count and extent.
func (a *Attachment) IsCompatible(b *Attachment) bool {
	return a.props.Format == b.props.Format &&
		a.props.Samples == b.props.Samples &&
		a.props.Extent.Width == b.props.Extent.Width &&
		a.props.Extent.Height == b.props.Extent.Height
}

func (a *Attachment) Destroy(ctx *VulkanContext) {
	for i := range a.images {
		a.images[i].destroy(ctx)
	}
	a.images = nil
}

// AttachmentUse pairs an attachment's views with the description a render
// pass consumes: the load/store ops and layout transitions for one use of
// the attachment.
type AttachmentUse struct {
	Views       []vk.ImageView
	Description vk.AttachmentDescription
	Type        AttachmentType
}

// NewAttachmentUse derives a render pass description from the attachment's
// own properties plus the per-pass ops and layouts. Stencil ops default to
// DontCare; adjust with SetStencilOps when the pass touches stencil.
func NewAttachmentUse(
	a *Attachment,
	loadOp vk.AttachmentLoadOp,
	storeOp vk.AttachmentStoreOp,
	initialLayout vk.ImageLayout,
	finalLayout vk.ImageLayout,
) AttachmentUse {
	return AttachmentUse{
		Views: a.ImageViews(),
		Description: vk.AttachmentDescription{
			Format:         a.props.Format,
			Samples:        a.props.Samples,
			LoadOp:         loadOp,
			StoreOp:        storeOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    finalLayout,
		},
		Type: a.props.Type,
	}
}

func (u *AttachmentUse) SetStencilOps(loadOp vk.AttachmentLoadOp, storeOp vk.AttachmentStoreOp) {
	u.Description.StencilLoadOp = loadOp
	u.Description.StencilStoreOp = storeOp
}
