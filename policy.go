package forall

import "fmt"

// Mode selects whether a dispatch blocks until device completion.
type Mode int

const (
	// ModeSync blocks the issuing goroutine until the device is idle
	// and reports the execution status of the launch.
	ModeSync Mode = iota

	// ModeAsync returns once the launch is enqueued. Execution errors
	// are deferred until the next synchronization point.
	ModeAsync
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "Sync"
	case ModeAsync:
		return "Async"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ExecPolicy selects the execution mode and the group size of a
// dispatch. GroupSize is the number of iteration items one execution
// group processes; it determines launch geometry, never correctness,
// and must be positive.
type ExecPolicy struct {
	Mode      Mode
	GroupSize int
}

// DeviceSync returns a policy that blocks until device completion.
func DeviceSync(groupSize int) ExecPolicy {
	return ExecPolicy{Mode: ModeSync, GroupSize: groupSize}
}

// DeviceAsync returns a policy that returns once work is enqueued.
func DeviceAsync(groupSize int) ExecPolicy {
	return ExecPolicy{Mode: ModeAsync, GroupSize: groupSize}
}

// Async returns the asynchronous variant of the policy, keeping the
// group size. The segmented walker re-dispatches every segment under
// this variant so segment launches can overlap on the device queue.
func (p ExecPolicy) Async() ExecPolicy {
	p.Mode = ModeAsync
	return p
}
