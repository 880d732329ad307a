//go:build nogpu

package webgpu

import "fmt"

// Device is unavailable when built with the nogpu tag.
type Device struct{}

// New reports that GPU support is compiled out.
func New() (*Device, error) {
	return nil, fmt.Errorf("%w: built with nogpu tag", ErrNoGPU)
}
