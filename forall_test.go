package forall

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/forall/device"
)

// mockDevice records launches and synchronizations. Unless run is
// disabled it executes kernels inline over the full geometry, so tests
// can observe visited indices deterministically.
type mockDevice struct {
	mu         sync.Mutex
	launches   []device.Geometry
	syncs      int
	failLaunch int   // 1-based launch ordinal to fail, 0 = never
	launchErr  error // returned by the failing launch
	syncErr    error // returned by every Synchronize
	run        bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{run: true, launchErr: errors.New("mock launch rejected")}
}

func (m *mockDevice) Name() string { return "mock" }

func (m *mockDevice) Launch(geom device.Geometry, k device.Kernel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLaunch > 0 && len(m.launches)+1 == m.failLaunch {
		return m.launchErr
	}
	m.launches = append(m.launches, geom)
	if m.run {
		for g := 0; g < geom.Groups; g++ {
			for l := 0; l < geom.GroupSize; l++ {
				k.Invoke(g, l)
			}
		}
	}
	return nil
}

func (m *mockDevice) Synchronize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return m.syncErr
}

func (m *mockDevice) Close() error { return nil }

func (m *mockDevice) launchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.launches)
}

func (m *mockDevice) syncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// recorder collects visited indices with their visit counts.
type recorder struct {
	mu   sync.Mutex
	hits map[int]int
}

func newRecorder() *recorder { return &recorder{hits: make(map[int]int)} }

func (r *recorder) body() Body {
	return func(i int) {
		r.mu.Lock()
		r.hits[i]++
		r.mu.Unlock()
	}
}

func (r *recorder) wantExactly(t *testing.T, indices []int) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hits) != len(indices) {
		t.Errorf("visited %d distinct indices, want %d", len(r.hits), len(indices))
	}
	for _, i := range indices {
		if r.hits[i] != 1 {
			t.Errorf("index %d visited %d times, want 1", i, r.hits[i])
		}
	}
}

func TestForallRangeScenario(t *testing.T) {
	// Range [10, 15) with group size 4: two groups, indices 10..14.
	dev := newMockDevice()
	rec := newRecorder()

	err := Forall(DeviceSync(4), NewRangeSegment(10, 15), rec.body(), WithDevice(dev))
	if err != nil {
		t.Fatalf("Forall failed: %v", err)
	}
	if n := dev.launchCount(); n != 1 {
		t.Fatalf("launches = %d, want 1", n)
	}
	if geom := dev.launches[0]; geom.Groups != 2 || geom.GroupSize != 4 {
		t.Errorf("geometry = %+v, want {Groups:2 GroupSize:4}", geom)
	}
	rec.wantExactly(t, []int{10, 11, 12, 13, 14})
}

func TestForallRangeOnEmulatedDevice(t *testing.T) {
	d := device.NewEmulated(4)
	defer d.Close()
	rec := newRecorder()

	err := Forall(DeviceSync(16), NewRangeSegment(0, 1000), rec.body(), WithDevice(d))
	if err != nil {
		t.Fatalf("Forall failed: %v", err)
	}
	want := make([]int, 1000)
	for i := range want {
		want[i] = i
	}
	rec.wantExactly(t, want)
}

func TestForallListSegment(t *testing.T) {
	dev := newMockDevice()
	rec := newRecorder()
	indices := []int{3, 99, 7, 42, 0, 12, 5}

	err := Forall(DeviceSync(4), NewListSegment(indices), rec.body(), WithDevice(dev))
	if err != nil {
		t.Fatalf("Forall failed: %v", err)
	}
	rec.wantExactly(t, indices)
}

func TestForallIcountRange(t *testing.T) {
	dev := newMockDevice()
	var mu sync.Mutex
	got := make(map[int]int) // icount -> index

	err := ForallIcount(DeviceSync(3), NewRangeSegment(20, 27), 100, func(ic, i int) {
		mu.Lock()
		got[ic] = i
		mu.Unlock()
	}, WithDevice(dev))
	if err != nil {
		t.Fatalf("ForallIcount failed: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("visited %d items, want 7", len(got))
	}
	for ii := 0; ii < 7; ii++ {
		if got[100+ii] != 20+ii {
			t.Errorf("icount %d -> index %d, want %d", 100+ii, got[100+ii], 20+ii)
		}
	}
}

func TestForallIcountList(t *testing.T) {
	dev := newMockDevice()
	indices := []int{5, 3, 8}
	var mu sync.Mutex
	got := make(map[int]int)

	err := ForallIcount(DeviceSync(2), NewListSegment(indices), 0, func(ic, i int) {
		mu.Lock()
		got[ic] = i
		mu.Unlock()
	}, WithDevice(dev))
	if err != nil {
		t.Fatalf("ForallIcount failed: %v", err)
	}
	for ii, want := range indices {
		if got[ii] != want {
			t.Errorf("icount %d -> index %d, want %d", ii, got[ii], want)
		}
	}
}

func TestForallZeroLengthIssuesNothing(t *testing.T) {
	dev := newMockDevice()
	err := Forall(DeviceSync(4), NewRangeSegment(5, 5), func(int) {
		t.Error("body invoked for empty domain")
	}, WithDevice(dev))
	if err != nil {
		t.Fatalf("Forall failed: %v", err)
	}
	if dev.launchCount() != 0 {
		t.Errorf("launches = %d, want 0", dev.launchCount())
	}
	if dev.syncCount() != 0 {
		t.Errorf("syncs = %d, want 0", dev.syncCount())
	}
}

func TestForallInvalidGroupSizeFailsFast(t *testing.T) {
	dev := newMockDevice()
	err := Forall(DeviceSync(0), NewRangeSegment(0, 10), func(int) {}, WithDevice(dev))
	if !errors.Is(err, device.ErrInvalidGroupSize) {
		t.Errorf("err = %v, want ErrInvalidGroupSize", err)
	}
	if dev.launchCount() != 0 {
		t.Errorf("launches = %d, want 0: work issued despite degenerate geometry", dev.launchCount())
	}
}

func TestForallNegativeLength(t *testing.T) {
	dev := newMockDevice()
	err := Forall(DeviceSync(4), NewRangeSegment(5, 2), func(int) {}, WithDevice(dev))
	if !errors.Is(err, device.ErrNegativeLength) {
		t.Errorf("err = %v, want ErrNegativeLength", err)
	}
}

func TestForallNilArguments(t *testing.T) {
	if err := Forall(DeviceSync(4), NewRangeSegment(0, 4), nil); !errors.Is(err, ErrNilBody) {
		t.Errorf("nil body: err = %v, want ErrNilBody", err)
	}
	if err := Forall(DeviceSync(4), nil, func(int) {}); !errors.Is(err, ErrNilDomain) {
		t.Errorf("nil domain: err = %v, want ErrNilDomain", err)
	}
	if err := LaunchKernel(DeviceSync(4), 4, nil); !errors.Is(err, ErrNilKernel) {
		t.Errorf("nil kernel: err = %v, want ErrNilKernel", err)
	}
}

// flatDomain implements Domain but is not a Segment or IndexSet.
type flatDomain struct{ n int }

func (d flatDomain) Len() int { return d.n }

func TestForallUnsupportedDomain(t *testing.T) {
	err := Forall(DeviceSync(4), flatDomain{n: 3}, func(int) {})
	if !errors.Is(err, ErrUnsupportedDomain) {
		t.Errorf("err = %v, want ErrUnsupportedDomain", err)
	}
}

func TestForallAsyncReturnsBeforeCompletion(t *testing.T) {
	d := device.NewEmulated(1)
	defer d.Close()

	release := make(chan struct{})
	done := make(chan struct{})

	err := Forall(DeviceAsync(1), NewRangeSegment(0, 1), func(int) {
		<-release
		close(done)
	}, WithDevice(d))
	if err != nil {
		t.Fatalf("Forall failed: %v", err)
	}

	// The async dispatch returned while the body is still blocked.
	select {
	case <-done:
		t.Fatal("body completed before it was released")
	default:
	}
	close(release)

	if err := d.Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("body did not run after synchronization")
	}
}

func TestForallIdempotent(t *testing.T) {
	dev := newMockDevice()
	seg := NewRangeSegment(4, 20)

	first := newRecorder()
	if err := Forall(DeviceSync(8), seg, first.body(), WithDevice(dev)); err != nil {
		t.Fatalf("first Forall failed: %v", err)
	}
	second := newRecorder()
	if err := Forall(DeviceSync(8), seg, second.body(), WithDevice(dev)); err != nil {
		t.Fatalf("second Forall failed: %v", err)
	}

	want := make([]int, 0, 16)
	for i := 4; i < 20; i++ {
		want = append(want, i)
	}
	first.wantExactly(t, want)
	second.wantExactly(t, want)
}

func TestForallLaunchErrorPropagates(t *testing.T) {
	dev := newMockDevice()
	dev.failLaunch = 1

	err := Forall(DeviceSync(4), NewRangeSegment(0, 8), func(int) {}, WithDevice(dev))
	if !errors.Is(err, dev.launchErr) {
		t.Errorf("err = %v, want wrapped %v", err, dev.launchErr)
	}
}

func TestForallSyncErrorPropagates(t *testing.T) {
	dev := newMockDevice()
	dev.syncErr = errors.New("execution fault")

	err := Forall(DeviceSync(4), NewRangeSegment(0, 8), func(int) {}, WithDevice(dev))
	if !errors.Is(err, dev.syncErr) {
		t.Errorf("sync policy: err = %v, want wrapped %v", err, dev.syncErr)
	}

	// Async dispatch defers execution errors to the next sync point.
	if err := Forall(DeviceAsync(4), NewRangeSegment(0, 8), func(int) {}, WithDevice(dev)); err != nil {
		t.Errorf("async policy: err = %v, want nil", err)
	}
}

func TestLaunchKernelRaw(t *testing.T) {
	dev := newMockDevice()
	var mu sync.Mutex
	visited := 0
	length := 10

	k := device.KernelFunc(func(group, lane int) {
		if group*3+lane < length {
			mu.Lock()
			visited++
			mu.Unlock()
		}
	})
	if err := LaunchKernel(DeviceSync(3), length, k, WithDevice(dev)); err != nil {
		t.Fatalf("LaunchKernel failed: %v", err)
	}
	if visited != length {
		t.Errorf("visited = %d, want %d", visited, length)
	}
}

// hostOnlyDevice refuses every kernel, forcing the host route.
type hostOnlyDevice struct{ mockDevice }

func (d *hostOnlyDevice) CanExecute(device.Kernel) bool { return false }

func TestForallRoutesToHostWhenDeviceRefuses(t *testing.T) {
	dev := &hostOnlyDevice{}
	rec := newRecorder()

	err := Forall(DeviceSync(4), NewRangeSegment(0, 6), rec.body(), WithDevice(dev))
	if err != nil {
		t.Fatalf("Forall failed: %v", err)
	}
	if dev.launchCount() != 0 {
		t.Errorf("refusing device received %d launches, want 0", dev.launchCount())
	}
	rec.wantExactly(t, []int{0, 1, 2, 3, 4, 5})
}

func TestForallDefaultDeviceIsEmulated(t *testing.T) {
	rec := newRecorder()
	if err := Forall(DeviceSync(4), NewRangeSegment(0, 8), rec.body()); err != nil {
		t.Fatalf("Forall failed: %v", err)
	}
	rec.wantExactly(t, []int{0, 1, 2, 3, 4, 5, 6, 7})
}
