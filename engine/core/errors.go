package core

import (
	"errors"
)

var (
	// ErrSwapchainOutOfDate reports that the surface no longer matches the
	// swapchain (typically after a window resize). It is recoverable: the
	// caller must recreate the swapchain and retry the frame.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")

	// ErrSwapchainRecreating is returned while a swapchain rebuild is in
	// progress and the frame should be skipped.
	ErrSwapchainRecreating = errors.New("swapchain recreating, frame skipped")
)
