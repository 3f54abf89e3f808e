package planner

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartCount(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want int
	}{
		{name: "empty", size: 0, want: 1},
		{name: "negative", size: -1, want: 1},
		{name: "one byte", size: 1, want: 1},
		{name: "just below threshold", size: MinPartSize - 1, want: 1},
		{name: "exactly threshold", size: MinPartSize, want: 1},
		{name: "just below two parts", size: 2*MinPartSize - 1, want: 1},
		{name: "two parts", size: 2 * MinPartSize, want: 2},
		{name: "16 MiB", size: 16 * 1024 * 1024, want: 3},
		{name: "100 MiB", size: 100 * 1024 * 1024, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PartCount(tt.size))
		})
	}
}

func TestPlan_Empty(t *testing.T) {
	ranges := Plan(0)

	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Number: 1, Start: 0, End: 0}, ranges[0])
	assert.NoError(t, Validate(ranges, 0))
}

func TestPlan_LastPartAbsorbsRemainder(t *testing.T) {
	size := int64(16 * 1024 * 1024)
	ranges := Plan(size)

	require.Len(t, ranges, 3)
	base := size / 3
	assert.Equal(t, base, ranges[0].Len())
	assert.Equal(t, base, ranges[1].Len())
	assert.Equal(t, size-2*base, ranges[2].Len())
	assert.Equal(t, size, ranges[2].End)
}

func TestPlan_CoversSizeExactly(t *testing.T) {
	sizes := []int64{
		0, 1, 7, MinPartSize - 1, MinPartSize, MinPartSize + 1,
		2*MinPartSize + 3, 16 * 1024 * 1024, 33*MinPartSize + 17,
	}

	for _, size := range sizes {
		ranges := Plan(size)
		require.NoError(t, Validate(ranges, size), "size %d", size)

		var total int64
		for i, r := range ranges {
			assert.Equal(t, int32(i+1), r.Number)
			total += r.Len()
		}
		assert.Equal(t, size, total, "size %d", size)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	assert.Equal(t, Plan(11*MinPartSize+5), Plan(11*MinPartSize+5))
}

func TestPlan_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, 16*1024*1024)
	_, _ = rng.Read(data)

	ranges := Plan(int64(len(data)))
	require.Len(t, ranges, 3)

	var joined bytes.Buffer
	var total int64
	for _, r := range ranges {
		part := data[r.Start:r.End]
		total += int64(len(part))
		joined.Write(part)
	}

	assert.Equal(t, int64(len(data)), total)
	assert.True(t, bytes.Equal(data, joined.Bytes()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ranges  []Range
		size    int64
		wantErr string
	}{
		{
			name:    "no ranges",
			ranges:  nil,
			size:    0,
			wantErr: "no ranges",
		},
		{
			name:    "gap",
			ranges:  []Range{{1, 0, 5}, {2, 6, 10}},
			size:    10,
			wantErr: "starts at 6",
		},
		{
			name:    "overlap",
			ranges:  []Range{{1, 0, 5}, {2, 4, 10}},
			size:    10,
			wantErr: "starts at 4",
		},
		{
			name:    "short coverage",
			ranges:  []Range{{1, 0, 5}, {2, 5, 9}},
			size:    10,
			wantErr: "cover 9 bytes",
		},
		{
			name:    "bad numbering",
			ranges:  []Range{{1, 0, 5}, {3, 5, 10}},
			size:    10,
			wantErr: "part number 3",
		},
		{
			name:    "inverted",
			ranges:  []Range{{1, 0, 5}, {2, 5, 4}},
			size:    4,
			wantErr: "ends before",
		},
		{
			name:   "valid",
			ranges: []Range{{1, 0, 5}, {2, 5, 10}},
			size:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.ranges, tt.size)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
