package device

import "fmt"

// Geometry describes one launch: the number of execution groups and the
// number of lanes per group. The total lane count Groups*GroupSize may
// exceed the domain length; kernels ignore the excess lanes.
type Geometry struct {
	Groups    int
	GroupSize int
}

// Items returns the total number of lanes the launch covers.
func (g Geometry) Items() int { return g.Groups * g.GroupSize }

// GeometryFor computes the launch geometry covering length items with
// the given group size: ceil(length / groupSize) groups.
//
// A non-positive group size and a negative length are launch
// configuration errors and fail before any work is issued.
func GeometryFor(length, groupSize int) (Geometry, error) {
	if groupSize <= 0 {
		return Geometry{}, fmt.Errorf("%w: %d", ErrInvalidGroupSize, groupSize)
	}
	if length < 0 {
		return Geometry{}, fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}
	return Geometry{
		Groups:    (length + groupSize - 1) / groupSize,
		GroupSize: groupSize,
	}, nil
}
