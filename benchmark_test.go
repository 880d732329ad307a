package forall

import (
	"sync/atomic"
	"testing"

	"github.com/gogpu/forall/device"
)

func benchmarkRange(b *testing.B, length, groupSize, workers int) {
	d := device.NewEmulated(workers)
	defer d.Close()
	seg := NewRangeSegment(0, length)
	var sink atomic.Int64

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := Forall(DeviceSync(groupSize), seg, func(idx int) {
			sink.Add(int64(idx))
		}, WithDevice(d))
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkForallRange1K(b *testing.B)  { benchmarkRange(b, 1<<10, 256, 4) }
func BenchmarkForallRange64K(b *testing.B) { benchmarkRange(b, 1<<16, 256, 4) }

func BenchmarkForallIndexSetWalk(b *testing.B) {
	d := device.NewEmulated(4)
	defer d.Close()

	set := NewIndexSet()
	for s := 0; s < 16; s++ {
		set.PushBack(NewRangeSegment(s*1024, (s+1)*1024))
	}
	var sink atomic.Int64

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := Forall(DeviceSync(256), set, func(idx int) {
			sink.Add(int64(idx))
		}, WithDevice(d))
		if err != nil {
			b.Fatal(err)
		}
	}
}
