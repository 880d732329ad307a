// Package device defines the device abstraction the forall dispatch
// engine issues work through: launch geometry, the kernel calling
// convention, explicit launch/synchronization status, and a registry of
// device implementations.
//
// The host-emulated device (see Emulated) is always registered under
// the name "emulated" and serves as the default.
package device

import (
	"errors"
	"fmt"
)

// Common device errors.
var (
	// ErrInvalidGroupSize is returned when launch geometry is requested
	// with a zero or negative group size.
	ErrInvalidGroupSize = errors.New("device: group size must be positive")

	// ErrNegativeLength is returned when launch geometry is requested
	// for a domain of negative length.
	ErrNegativeLength = errors.New("device: domain length must be non-negative")

	// ErrNilKernel is returned when Launch is called with a nil kernel.
	ErrNilKernel = errors.New("device: kernel is nil")

	// ErrClosed is returned when issuing work to a closed device.
	ErrClosed = errors.New("device: device is closed")

	// ErrHostOnly is returned by devices that cannot execute host
	// callables when Launch is given a kernel without a device-native
	// representation. Callers should fall back to the host device.
	ErrHostOnly = errors.New("device: kernel requires host execution")

	// ErrNotRegistered is returned when opening an unknown device name.
	ErrNotRegistered = errors.New("device: not registered")
)

// Kernel is the device entry point for one launch. The device invokes
// it once per (group, lane) pair of the launch geometry. Kernels must
// tolerate lanes beyond the domain length: trailing lanes of a
// partially filled final group are expected to do nothing.
type Kernel interface {
	// Invoke executes the work item for lane within execution group.
	Invoke(group, lane int)
}

// KernelFunc adapts an ordinary function to the Kernel interface.
type KernelFunc func(group, lane int)

// Invoke calls f(group, lane).
func (f KernelFunc) Invoke(group, lane int) { f(group, lane) }

// Device executes kernels over a launch geometry.
//
// Launch reports the issuance status: a non-nil error means the device
// rejected the launch and no work was enqueued. Execution failures are
// detected later, by Synchronize. Both statuses are explicit return
// values; devices keep no global "last error".
type Device interface {
	// Name returns the device identifier (e.g. "emulated", "webgpu").
	Name() string

	// Launch enqueues one kernel execution over geom. It returns once
	// the work is enqueued, never blocking on device completion.
	Launch(geom Geometry, k Kernel) error

	// Synchronize blocks until all previously launched work has
	// retired, then returns the first execution error recorded since
	// the previous Synchronize, or nil.
	Synchronize() error

	// Close releases the device. Further launches fail with ErrClosed.
	Close() error
}

// Capabilities is an optional Device interface used to route kernels.
// Dispatch probes it before launching so that a device which cannot
// execute a given kernel is skipped in favor of the host device.
type Capabilities interface {
	// CanExecute reports whether the device can execute k.
	CanExecute(k Kernel) bool
}

// DeviceError describes a failed device operation. Op is "launch" for
// issuance failures and "synchronize" for execution failures detected
// at a synchronization point.
type DeviceError struct {
	Device string // device name
	Op     string // failing operation
	Err    error  // underlying cause
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Device, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error { return e.Err }
