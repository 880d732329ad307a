package forall

import (
	"fmt"

	"github.com/gogpu/forall/device"
)

// Body is the per-element operation of an uncounted dispatch. It is
// invoked with the domain index of each visited item, exactly once per
// item, in unspecified parallel order. The dispatch engine never
// inspects the body; it only invokes it.
type Body func(i int)

// IcountBody is the per-element operation of a counted dispatch. It is
// invoked with (icount, i): the item's position in the overall composed
// iteration space, and its domain index.
type IcountBody func(icount, i int)

// Forall applies body to every index of the domain under the given
// execution policy.
//
// Range and list segments dispatch as a single launch. An *IndexSet
// dispatches one launch per segment, in segment order, under the
// asynchronous variant of the policy, and synchronizes once after all
// segments are issued.
//
// Every item in the domain is visited exactly once; visitation order
// across items is unspecified. A zero-length domain issues nothing and
// returns nil.
func Forall(p ExecPolicy, d Domain, body Body, opts ...Option) error {
	if d == nil {
		return ErrNilDomain
	}
	if body == nil {
		return ErrNilBody
	}
	cfg, err := newDispatchConfig(opts)
	if err != nil {
		return err
	}
	dev := hostRoute(cfg.device)

	if set, ok := d.(*IndexSet); ok {
		return walkSet(dev, cfg.scope, p, set, body)
	}
	seg, ok := d.(Segment)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedDomain, d)
	}
	return dispatchSegment(dev, cfg.scope, p, seg, body)
}

// ForallIcount applies body to every index of the domain, additionally
// passing each item its position in the composed iteration space,
// starting at icount.
//
// For an *IndexSet, segment k receives positions offset by the sum of
// the lengths of segments 0..k-1: the global positions
// icount..icount+Len()-1 are assigned contiguously, in segment order,
// with no gaps or duplicates.
func ForallIcount(p ExecPolicy, d Domain, icount int, body IcountBody, opts ...Option) error {
	if d == nil {
		return ErrNilDomain
	}
	if body == nil {
		return ErrNilBody
	}
	cfg, err := newDispatchConfig(opts)
	if err != nil {
		return err
	}
	dev := hostRoute(cfg.device)

	if set, ok := d.(*IndexSet); ok {
		return walkSetIcount(dev, cfg.scope, p, set, icount, body)
	}
	seg, ok := d.(Segment)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedDomain, d)
	}
	return dispatchSegmentIcount(dev, cfg.scope, p, seg, icount, body)
}

// LaunchKernel issues an arbitrary kernel over the geometry covering
// length items. It is the raw dispatch entry: geometry computation, the
// fault-tolerance scope, and status handling apply exactly as for
// Forall, but the kernel receives raw (group, lane) pairs and is
// responsible for its own bounds handling.
//
// Kernels with a device-native representation (see webgpu.Program)
// reach the configured device directly; kernels the device cannot
// execute are routed to the host device.
func LaunchKernel(p ExecPolicy, length int, k device.Kernel, opts ...Option) error {
	if k == nil {
		return ErrNilKernel
	}
	cfg, err := newDispatchConfig(opts)
	if err != nil {
		return err
	}
	dev := routeDevice(cfg.device, k)
	return launchOn(dev, cfg.scope, p, length, k)
}

// dispatchSegment projects the segment's shape and launches the
// matching kernel entry point.
func dispatchSegment(dev device.Device, sc Scope, p ExecPolicy, seg Segment, body Body) error {
	switch s := seg.(type) {
	case RangeSegment:
		return launchOn(dev, sc, p, s.Len(), rangeKernel(s.Begin(), s.Len(), p.GroupSize, body))
	case ListSegment:
		return launchOn(dev, sc, p, s.Len(), listKernel(s.Indices(), p.GroupSize, body))
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedDomain, seg)
	}
}

// dispatchSegmentIcount is the counted variant of dispatchSegment.
func dispatchSegmentIcount(dev device.Device, sc Scope, p ExecPolicy, seg Segment, icount int, body IcountBody) error {
	switch s := seg.(type) {
	case RangeSegment:
		return launchOn(dev, sc, p, s.Len(), rangeKernelIcount(s.Begin(), s.Len(), icount, p.GroupSize, body))
	case ListSegment:
		return launchOn(dev, sc, p, s.Len(), listKernelIcount(s.Indices(), icount, p.GroupSize, body))
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedDomain, seg)
	}
}

// launchOn issues one launch: compute geometry, enter the
// fault-tolerance scope, issue, check the issuance status, and for
// synchronous policies wait for device idle and check the execution
// status. The scope exit runs on every path.
func launchOn(dev device.Device, sc Scope, p ExecPolicy, length int, k device.Kernel) error {
	geom, err := device.GeometryFor(length, p.GroupSize)
	if err != nil {
		return fmt.Errorf("forall: %w", err)
	}
	if geom.Groups == 0 {
		return nil
	}
	Logger().Debug("forall: launch",
		"device", dev.Name(), "mode", p.Mode.String(),
		"groups", geom.Groups, "groupSize", geom.GroupSize)

	sc.Enter()
	defer sc.Exit()

	if err := dev.Launch(geom, k); err != nil {
		return fmt.Errorf("forall: launch on %s: %w", dev.Name(), err)
	}
	if p.Mode == ModeSync {
		if err := dev.Synchronize(); err != nil {
			return fmt.Errorf("forall: synchronize %s: %w", dev.Name(), err)
		}
	}
	return nil
}

// hostProbe stands in for the host-closure kernels the trampolines
// produce when probing device capabilities.
var hostProbe device.Kernel = device.KernelFunc(func(int, int) {})

// hostRoute returns the device to use for host-closure kernels: the
// configured device if it can execute them, otherwise the shared host
// device.
func hostRoute(dev device.Device) device.Device {
	return routeDevice(dev, hostProbe)
}

// routeDevice returns dev if it can execute k, otherwise the shared
// host device. Devices that do not report capabilities are assumed to
// execute anything.
func routeDevice(dev device.Device, k device.Kernel) device.Device {
	if c, ok := dev.(device.Capabilities); ok && !c.CanExecute(k) {
		Logger().Debug("forall: routing kernel to host device", "from", dev.Name())
		return device.Host()
	}
	return dev
}
