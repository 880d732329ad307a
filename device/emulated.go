package device

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/eapache/queue"
)

// launchOp is one enqueued kernel launch.
type launchOp struct {
	geom Geometry
	k    Kernel
}

// Emulated executes kernels on the host while preserving the device
// execution model: launches retire in issue order through a single
// stream, execution groups of one launch run in parallel across a
// bounded set of workers, and lanes within a group run sequentially.
//
// Launch never blocks: the pending-launch queue is unbounded, so
// asynchronous dispatch semantics hold by construction. A kernel panic
// is recovered and surfaced as an execution error by the next
// Synchronize; the output of the failing launch must not be trusted.
//
// Emulated is safe for concurrent use.
type Emulated struct {
	workers int

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *queue.Queue // launches in issue order
	inflight bool         // a launch is currently executing
	execErr  error        // first execution error since last Synchronize
	closed   bool
	drained  bool // stream goroutine has exited
}

// NewEmulated creates a host-emulated device that runs execution groups
// on up to workers goroutines. If workers is 0 or negative, GOMAXPROCS
// is used.
func NewEmulated(workers int) *Emulated {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &Emulated{
		workers: workers,
		pending: queue.New(),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.stream()
	return d
}

func init() {
	Register("emulated", func() (Device, error) { return Host(), nil })
}

var (
	hostOnce sync.Once
	hostDev  *Emulated
)

// Host returns the shared host-emulated device. It is the fallback for
// kernels that device implementations cannot execute and is never
// closed by the registry.
func Host() Device {
	hostOnce.Do(func() { hostDev = NewEmulated(0) })
	return hostDev
}

// Name returns "emulated".
func (d *Emulated) Name() string { return "emulated" }

// Workers returns the number of worker goroutines used per launch.
func (d *Emulated) Workers() int { return d.workers }

// CanExecute reports whether the device can execute k.
// The host device executes any non-nil kernel.
func (d *Emulated) CanExecute(k Kernel) bool { return k != nil }

// SetLogger configures logging for the device package.
// Called by forall.SetLogger when a logger is propagated.
func (d *Emulated) SetLogger(l *slog.Logger) { setLogger(l) }

// Launch enqueues one kernel execution and returns immediately.
// A zero-group geometry is accepted and enqueues nothing.
func (d *Emulated) Launch(geom Geometry, k Kernel) error {
	if k == nil {
		return ErrNilKernel
	}
	if geom.GroupSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGroupSize, geom.GroupSize)
	}
	if geom.Groups < 0 {
		return fmt.Errorf("%w: %d groups", ErrNegativeLength, geom.Groups)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if geom.Groups == 0 {
		return nil
	}
	d.pending.Add(launchOp{geom: geom, k: k})
	d.cond.Broadcast()
	slogger().Debug("device: launch enqueued",
		"device", d.Name(), "groups", geom.Groups, "groupSize", geom.GroupSize)
	return nil
}

// Synchronize blocks until every enqueued launch has retired, then
// returns the first execution error recorded since the previous
// Synchronize, clearing it.
func (d *Emulated) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending.Length() > 0 || d.inflight {
		d.cond.Wait()
	}
	err := d.execErr
	d.execErr = nil
	return err
}

// Close drains outstanding launches, stops the stream, and rejects
// further work. It returns any execution error still pending.
func (d *Emulated) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.cond.Broadcast()
	for !d.drained {
		d.cond.Wait()
	}
	err := d.execErr
	d.execErr = nil
	return err
}

// stream retires launches one at a time, in issue order.
func (d *Emulated) stream() {
	for {
		d.mu.Lock()
		for d.pending.Length() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.pending.Length() == 0 {
			d.drained = true
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}
		op := d.pending.Remove().(launchOp)
		d.inflight = true
		d.mu.Unlock()

		d.run(op)

		d.mu.Lock()
		d.inflight = false
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

// run executes one launch: groups are split into contiguous chunks,
// one chunk per worker, lanes sequential within a group.
func (d *Emulated) run(op launchOp) {
	workers := d.workers
	if op.geom.Groups < workers {
		workers = op.geom.Groups
	}
	perWorker := (op.geom.Groups + workers - 1) / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		first := w * perWorker
		last := min(first+perWorker, op.geom.Groups)

		go func(first, last int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.recordExecErr(fmt.Errorf("kernel panic: %v", r))
				}
			}()
			for group := first; group < last; group++ {
				for lane := 0; lane < op.geom.GroupSize; lane++ {
					op.k.Invoke(group, lane)
				}
			}
		}(first, last)
	}
	wg.Wait()
}

// recordExecErr keeps the first execution error of the current
// synchronization interval.
func (d *Emulated) recordExecErr(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.execErr == nil {
		d.execErr = &DeviceError{Device: d.Name(), Op: "execute", Err: cause}
	}
	slogger().Warn("device: kernel execution failed", "device", d.Name(), "err", cause)
}
