package frames

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFrameName(t *testing.T) {
	tests := []struct {
		i, total int
		want     string
	}{
		{0, 1, "frame_1.jpg"},
		{8, 9, "frame_9.jpg"},
		{0, 25, "frame_01.jpg"},
		{8, 25, "frame_09.jpg"},
		{9, 25, "frame_10.jpg"},
		{24, 25, "frame_25.jpg"},
		{0, 100, "frame_001.jpg"},
		{99, 100, "frame_100.jpg"},
		{0, 1000, "frame_0001.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrameName(tt.i, tt.total), "FrameName(%d, %d)", tt.i, tt.total)
	}
}

func TestNameWidth(t *testing.T) {
	assert.Equal(t, 1, NameWidth(0))
	assert.Equal(t, 1, NameWidth(9))
	assert.Equal(t, 2, NameWidth(10))
	assert.Equal(t, 2, NameWidth(99))
	assert.Equal(t, 3, NameWidth(100))
}

func TestProperty_FrameNamesSortInTemporalOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("lexicographic order of names equals frame order", prop.ForAll(
		func(total int) bool {
			names := make([]string, total)
			for i := range names {
				names[i] = FrameName(i, total)
			}
			sorted := append([]string(nil), names...)
			sort.Strings(sorted)
			for i := range names {
				if names[i] != sorted[i] {
					t.Logf("total=%d: position %d has %s, sorted has %s", total, i, names[i], sorted[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 3000),
	))

	properties.Property("names within a sequence share one width", prop.ForAll(
		func(total int) bool {
			return len(FrameName(0, total)) == len(FrameName(total-1, total))
		},
		gen.IntRange(1, 100000),
	))

	properties.TestingRun(t)
}
