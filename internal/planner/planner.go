package planner

import (
	"fmt"
)

// MinPartSize is the storage service's minimum multipart chunk size (5 MiB).
// It only drives the part count; see PartCount.
const MinPartSize int64 = 5_242_880

// Range is a contiguous slice [Start, End) of an object, identified by its
// 1-based part number.
type Range struct {
	Number int32
	Start  int64
	End    int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// PartCount returns max(1, totalSize/MinPartSize).
//
// The quotient is used as a count, not as a size bound, so parts grow past
// MinPartSize as the object grows and the remainder of a 5 MiB multiple lands
// in the last part. A 16 MiB object yields 3 parts of ~5.33 MiB.
func PartCount(totalSize int64) int {
	if totalSize <= 0 {
		return 1
	}
	n := totalSize / MinPartSize
	if n == 0 {
		return 1
	}
	return int(n)
}

// Plan returns the ranges covering [0, totalSize) exactly once.
// A zero (or negative) size yields a single empty range.
func Plan(totalSize int64) []Range {
	if totalSize < 0 {
		totalSize = 0
	}

	count := PartCount(totalSize)
	size := totalSize / int64(count)

	ranges := make([]Range, count)
	for i := 0; i < count; i++ {
		ranges[i] = Range{
			Number: int32(i + 1),
			Start:  size * int64(i),
			End:    size * int64(i+1),
		}
	}
	ranges[count-1].End = totalSize

	return ranges
}

// Validate checks that ranges are numbered 1..N in order, contiguous and
// cover [0, totalSize) with no gap or overlap.
func Validate(ranges []Range, totalSize int64) error {
	if len(ranges) == 0 {
		return fmt.Errorf("no ranges planned")
	}

	var offset int64
	for i, r := range ranges {
		if r.Number != int32(i+1) {
			return fmt.Errorf("range %d has part number %d", i, r.Number)
		}
		if r.Start != offset {
			return fmt.Errorf("part %d starts at %d, want %d", r.Number, r.Start, offset)
		}
		if r.End < r.Start {
			return fmt.Errorf("part %d ends before it starts", r.Number)
		}
		offset = r.End
	}

	if offset != totalSize {
		return fmt.Errorf("ranges cover %d bytes, want %d", offset, totalSize)
	}
	return nil
}
