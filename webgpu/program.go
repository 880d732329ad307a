// Package webgpu provides a forall device that executes WGSL compute
// programs through gogpu/wgpu. Host callables cannot run on a GPU, so
// the device only accepts kernels carrying a Program; anything else is
// routed back to the host device by the dispatcher.
//
// Users opt in via blank import:
//
//	import _ "github.com/gogpu/forall/webgpu" // registers the "webgpu" device
package webgpu

import (
	"errors"

	"github.com/gogpu/forall/device"
)

// Errors reported by the webgpu device.
var (
	// ErrNoSource is returned when a program has no WGSL source.
	ErrNoSource = errors.New("webgpu: program has no WGSL source")

	// ErrNoGPU is returned when no usable GPU adapter is found.
	ErrNoGPU = errors.New("webgpu: no GPU adapter available")

	// ErrTimeout is returned when the GPU does not signal completion
	// within the fence wait deadline.
	ErrTimeout = errors.New("webgpu: fence wait timed out")
)

// Binding describes one buffer a Program binds at @group(0) @binding(i),
// where i is the binding's position in Program.Bindings.
type Binding struct {
	// Data is the host-side contents. It is uploaded when the launch is
	// issued and, when ReadBack is set, copied back into the same slice
	// by the next Synchronize.
	Data []byte

	// Uniform binds the buffer as a uniform instead of storage.
	Uniform bool

	// ReadOnly marks a storage binding read-only in the shader.
	ReadOnly bool

	// ReadBack copies the device contents back into Data at the next
	// Synchronize.
	ReadBack bool
}

// Program is a device-native kernel: a WGSL compute shader plus the
// buffers it binds. The shader's @workgroup_size should match the group
// size of the dispatching policy; the launch issues one workgroup per
// execution group.
type Program struct {
	// WGSL is the compute shader source.
	WGSL string

	// EntryPoint is the compute entry point. Defaults to "main".
	EntryPoint string

	// Bindings are bound in order as @group(0) @binding(i).
	Bindings []Binding

	// Host optionally provides a host reference implementation so the
	// same program can run on the emulated device.
	Host device.Kernel
}

var _ device.Kernel = (*Program)(nil)

// Invoke satisfies device.Kernel through the Host reference
// implementation. A program without one cannot run on the host; the
// panic is recovered by the emulated device and surfaced as an
// execution error at the next synchronization point.
func (p *Program) Invoke(group, lane int) {
	if p.Host == nil {
		panic("webgpu: program has no host implementation")
	}
	p.Host.Invoke(group, lane)
}

// entryPoint returns the effective entry point name.
func (p *Program) entryPoint() string {
	if p.EntryPoint == "" {
		return "main"
	}
	return p.EntryPoint
}

// validate checks the program before any device resource is created.
func (p *Program) validate() error {
	if p.WGSL == "" {
		return ErrNoSource
	}
	return nil
}
