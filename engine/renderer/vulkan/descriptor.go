package vulkan

import (
	"sync/atomic"

	vk "github.com/goki/vulkan"
)

// DescriptorSet is a reference-counted descriptor set shared between
// materials. The release callback runs once, when the last holder lets go.
type DescriptorSet struct {
	Handle vk.DescriptorSet

	refs    int32
	release func()
}

// NewSharedDescriptorSet wraps an allocated descriptor set with an initial
// reference. release may be nil when the set's pool outlives all holders.
func NewSharedDescriptorSet(handle vk.DescriptorSet, release func()) *DescriptorSet {
	return &DescriptorSet{
		Handle:  handle,
		refs:    1,
		release: release,
	}
}

// Retain adds a reference and returns the set for chaining.
func (ds *DescriptorSet) Retain() *DescriptorSet {
	atomic.AddInt32(&ds.refs, 1)
	return ds
}

// Release drops a reference. The underlying set is released when the count
// reaches zero.
func (ds *DescriptorSet) Release() {
	if atomic.AddInt32(&ds.refs, -1) == 0 && ds.release != nil {
		ds.release()
	}
}
