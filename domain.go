package forall

// Domain is an iteration space of integer indices. The dispatch engine
// consumes domains as read-only views; it never creates, copies, or
// mutates them.
//
// RangeSegment, ListSegment, and *IndexSet implement Domain.
type Domain interface {
	// Len reports the number of items in the domain. Always >= 0 for
	// correctly constructed domains.
	Len() int
}

// Segment is a Domain that can be composed into an IndexSet: a
// contiguous range or an indirection list. The variant set is closed;
// the walker stays shape-agnostic by switching over it.
type Segment interface {
	Domain
	segment()
}

// RangeSegment is the contiguous iteration domain [Begin, End).
type RangeSegment struct {
	begin, end int
}

// NewRangeSegment returns the domain of indices [begin, end).
// Callers must not construct a range with end < begin; dispatch rejects
// the resulting negative length before issuing work.
func NewRangeSegment(begin, end int) RangeSegment {
	return RangeSegment{begin: begin, end: end}
}

// Begin returns the first index of the range.
func (s RangeSegment) Begin() int { return s.begin }

// End returns one past the last index of the range.
func (s RangeSegment) End() int { return s.end }

// Len returns End - Begin.
func (s RangeSegment) Len() int { return s.end - s.begin }

func (RangeSegment) segment() {}

// ListSegment is an indirection iteration domain: the i-th item visits
// index Indices()[i].
type ListSegment struct {
	indices []int
}

// NewListSegment returns a domain that visits the given indices in
// unspecified parallel order. The slice is borrowed, not copied; the
// caller must not mutate it while a dispatch over the segment is
// outstanding.
func NewListSegment(indices []int) ListSegment {
	return ListSegment{indices: indices}
}

// Indices returns the indirection array backing the segment.
func (s ListSegment) Indices() []int { return s.indices }

// Len returns the number of indices in the segment.
func (s ListSegment) Len() int { return len(s.indices) }

func (ListSegment) segment() {}
