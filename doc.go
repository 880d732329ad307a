// Package forall provides execution-policy-parameterized loop dispatch
// for data-parallel numerical kernels.
//
// # Overview
//
// forall is a performance-portability layer for the GoGPU ecosystem.
// Calling code expresses "apply this per-element operation over this
// iteration domain" once; the dispatch engine maps that onto a device:
// it computes launch geometry, handles contiguous ranges, indirection
// lists, and segmented index sets, and offers synchronous and
// fire-and-forget execution modes.
//
// # Quick Start
//
//	import "github.com/gogpu/forall"
//
//	// Visit indices [10, 15) with groups of 4 work items,
//	// blocking until the device is idle.
//	err := forall.Forall(forall.DeviceSync(4),
//	    forall.NewRangeSegment(10, 15),
//	    func(i int) { out[i] = a*x[i] + y[i] })
//
// # Iteration Domains
//
// Three domain shapes are supported:
//   - RangeSegment: the contiguous indices [Begin, End)
//   - ListSegment: indices read from an indirection array
//   - IndexSet: an ordered composition of heterogeneous segments
//
// Dispatching over an IndexSet issues one launch per segment, in
// segment order, and synchronizes once after all segments are issued.
// The counted variants (ForallIcount) additionally pass each item its
// position in the overall composed iteration space.
//
// # Execution Policies
//
// An ExecPolicy selects the execution mode (ModeSync blocks until the
// device is idle, ModeAsync returns once work is enqueued) and the
// group size that determines launch geometry:
//
//	groups = ceil(domain length / group size)
//
// Group size affects occupancy, never correctness.
//
// # Devices
//
// Work is issued to a device.Device. The host-emulated device is always
// registered and is the default; GPU execution of shader programs is
// available through the webgpu package:
//
//	import _ "github.com/gogpu/forall/webgpu" // registers the "webgpu" device
//
// Devices that cannot execute host callables report so via their
// capabilities, and dispatch transparently falls back to the host
// device, mirroring the GPU-or-CPU fallback used across GoGPU.
package forall

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
