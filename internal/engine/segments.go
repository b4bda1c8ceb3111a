package engine

import "sort"

// SegmentSet is the set of segment indices appended to the current buffer.
// It is owned by the engine loop and is not safe for concurrent use.
type SegmentSet struct {
	indices map[int]struct{}
}

// NewSegmentSet returns an empty set.
func NewSegmentSet() *SegmentSet {
	return &SegmentSet{indices: make(map[int]struct{})}
}

// Add records index. Duplicates are ignored and reported with false.
func (s *SegmentSet) Add(index int) bool {
	if _, exists := s.indices[index]; exists {
		return false
	}
	s.indices[index] = struct{}{}
	return true
}

// Has reports whether index has been appended.
func (s *SegmentSet) Has(index int) bool {
	_, ok := s.indices[index]
	return ok
}

// Len returns the number of indices in the set.
func (s *SegmentSet) Len() int {
	return len(s.indices)
}

// Sorted returns the indices in ascending order.
func (s *SegmentSet) Sorted() []int {
	out := make([]int, 0, len(s.indices))
	for i := range s.indices {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// DropBefore removes the media segments behind cursor. The initialization
// unit is kept since it stays applied to the buffer. It returns how many
// indices were removed.
func (s *SegmentSet) DropBefore(cursor int) int {
	n := 0
	for i := range s.indices {
		if i > 0 && i < cursor {
			delete(s.indices, i)
			n++
		}
	}
	return n
}

// ContiguousFrom counts the run start, start+1, ... present in the set,
// stopping at the first gap.
func (s *SegmentSet) ContiguousFrom(start int) int {
	if start < 1 {
		start = 1
	}
	n := 0
	for s.Has(start + n) {
		n++
	}
	return n
}
