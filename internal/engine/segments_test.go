package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentSet_Add_ignoresDuplicates(t *testing.T) {
	s := NewSegmentSet()
	assert.True(t, s.Add(3))
	assert.False(t, s.Add(3))
	assert.True(t, s.Add(0))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []int{0, 3}, s.Sorted())
}

func TestSegmentSet_DropBefore_keepsInit(t *testing.T) {
	s := NewSegmentSet()
	for _, i := range []int{0, 1, 2, 5, 6} {
		s.Add(i)
	}
	assert.Equal(t, 2, s.DropBefore(5))
	assert.Equal(t, []int{0, 5, 6}, s.Sorted())
	assert.Equal(t, 0, s.DropBefore(1))
}

func TestSegmentSet_ContiguousFrom(t *testing.T) {
	s := NewSegmentSet()
	for _, i := range []int{0, 1, 2, 3, 5} {
		s.Add(i)
	}
	tests := []struct {
		start int
		want  int
	}{
		{0, 3},
		{1, 3},
		{2, 2},
		{4, 0},
		{5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.ContiguousFrom(tt.start), "start %d", tt.start)
	}
}
