package forall

import (
	"fmt"

	"github.com/gogpu/forall/device"
)

// Segmented index-set walker.
//
// Segments are issued sequentially on the host, in strictly increasing
// segment order, each under the asynchronous variant of the caller's
// policy; a single synchronization after the last segment covers all
// launches collectively, letting the device queue overlap them.
// Correctness never depends on inter-segment execution order, only on
// the deterministic host-side issue order and exact index accounting.

// walkSet dispatches every segment of the set, then synchronizes once.
// A set with zero segments issues nothing; the trailing synchronization
// still runs as a degenerate no-op.
func walkSet(dev device.Device, sc Scope, p ExecPolicy, set *IndexSet, body Body) error {
	ap := p.Async()
	for isi := 0; isi < set.NumSegments(); isi++ {
		if err := dispatchSegment(dev, sc, ap, set.Segment(isi), body); err != nil {
			return fmt.Errorf("segment %d: %w", isi, err)
		}
	}
	if err := dev.Synchronize(); err != nil {
		return fmt.Errorf("forall: synchronize %s: %w", dev.Name(), err)
	}
	return nil
}

// walkSetIcount is the counted walk: the running global index passed to
// segment k equals icount plus the lengths of segments 0..k-1, advanced
// on the host after each segment is issued.
func walkSetIcount(dev device.Device, sc Scope, p ExecPolicy, set *IndexSet, icount int, body IcountBody) error {
	ap := p.Async()
	ic := icount
	for isi := 0; isi < set.NumSegments(); isi++ {
		seg := set.Segment(isi)
		if err := dispatchSegmentIcount(dev, sc, ap, seg, ic, body); err != nil {
			return fmt.Errorf("segment %d: %w", isi, err)
		}
		ic += seg.Len()
	}
	if err := dev.Synchronize(); err != nil {
		return fmt.Errorf("forall: synchronize %s: %w", dev.Name(), err)
	}
	return nil
}
