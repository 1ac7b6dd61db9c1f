package ipc

import (
	"errors"
	"fmt"
)

type unsupportedPlatformError struct{}

func (e unsupportedPlatformError) Error() string {
	return "ipc: service channel is not supported on this platform"
}

// IsUnsupportedPlatform reports whether err means the host has no native
// duplex pipe endpoint.
func IsUnsupportedPlatform(err error) bool {
	var e unsupportedPlatformError
	return errors.As(err, &e)
}

type frameTooLargeError struct {
	size int
}

func (e frameTooLargeError) Error() string {
	return fmt.Sprintf("ipc: frame of %d bytes exceeds the %d byte limit", e.size, maxFrameSize)
}

// IsFrameTooLarge reports whether err was caused by a message exceeding the
// per-direction frame limit.
func IsFrameTooLarge(err error) bool {
	var e frameTooLargeError
	return errors.As(err, &e)
}
