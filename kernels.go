package forall

import "github.com/gogpu/forall/device"

// Kernel entry points: the trampolines a device invokes once per
// (group, lane) pair. This is the only place hardware identifiers are
// consulted; everything above works in domain-relative coordinates.
//
// Each trampoline computes the local work item
//
//	ii = group*groupSize + lane
//
// and invokes the body only when ii lies in [0, length): trailing lanes
// of a partially filled final group are no-ops.

// rangeKernel visits begin+ii for a contiguous range.
func rangeKernel(begin, length, groupSize int, body Body) device.KernelFunc {
	return func(group, lane int) {
		ii := group*groupSize + lane
		if ii < length {
			body(begin + ii)
		}
	}
}

// rangeKernelIcount visits (icount+ii, begin+ii) for a contiguous range.
func rangeKernelIcount(begin, length, icount, groupSize int, body IcountBody) device.KernelFunc {
	return func(group, lane int) {
		ii := group*groupSize + lane
		if ii < length {
			body(icount+ii, begin+ii)
		}
	}
}

// listKernel visits indices[ii] for an indirection array.
func listKernel(indices []int, groupSize int, body Body) device.KernelFunc {
	return func(group, lane int) {
		ii := group*groupSize + lane
		if ii < len(indices) {
			body(indices[ii])
		}
	}
}

// listKernelIcount visits (icount+ii, indices[ii]) for an indirection array.
func listKernelIcount(indices []int, icount, groupSize int, body IcountBody) device.KernelFunc {
	return func(group, lane int) {
		ii := group*groupSize + lane
		if ii < len(indices) {
			body(icount+ii, indices[ii])
		}
	}
}
