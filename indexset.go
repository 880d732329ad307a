package forall

// IndexSet is an ordered collection of heterogeneous segments composed
// into one iteration domain. Segment order is significant: the walker
// issues one launch per segment in strictly increasing segment order,
// and counted dispatch assigns each segment a contiguous sub-range of
// the global index space in that order.
//
// IndexSet implements Domain; its Len is the sum of segment lengths.
// It is not safe to mutate an IndexSet while a dispatch over it is
// outstanding.
type IndexSet struct {
	segs  []Segment
	total int
}

// NewIndexSet returns an IndexSet over the given segments, in order.
func NewIndexSet(segs ...Segment) *IndexSet {
	s := &IndexSet{}
	for _, seg := range segs {
		s.PushBack(seg)
	}
	return s
}

// PushBack appends a segment to the set.
func (s *IndexSet) PushBack(seg Segment) {
	s.segs = append(s.segs, seg)
	s.total += seg.Len()
}

// NumSegments returns the number of segments in the set.
func (s *IndexSet) NumSegments() int { return len(s.segs) }

// Segment returns the i-th segment of the set.
func (s *IndexSet) Segment(i int) Segment { return s.segs[i] }

// Len returns the total number of items across all segments.
func (s *IndexSet) Len() int { return s.total }
