package multipart

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Session identifies one multipart upload attempt. UploadID is issued by the
// service and is never reused.
type Session struct {
	Bucket   string
	Key      string
	UploadID string
}

// PartResult is the completion token of one uploaded part.
type PartResult struct {
	Number int32
	ETag   string
}

// Manifest is the ordered part list passed to CompleteMultipartUpload.
type Manifest []awstypes.CompletedPart

// Assemble sorts results by part number and checks that exactly the parts
// 1..expected are present, each once, with a token.
func Assemble(results []PartResult, expected int) (Manifest, error) {
	if len(results) != expected {
		return nil, fmt.Errorf("manifest has %d parts, want %d", len(results), expected)
	}

	sorted := make([]PartResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	manifest := make(Manifest, len(sorted))
	for i, r := range sorted {
		if r.Number != int32(i+1) {
			return nil, fmt.Errorf("manifest slot %d holds part %d", i+1, r.Number)
		}
		if r.ETag == "" {
			return nil, fmt.Errorf("part %d has no ETag", r.Number)
		}
		manifest[i] = awstypes.CompletedPart{
			ETag:       aws.String(r.ETag),
			PartNumber: aws.Int32(r.Number),
		}
	}
	return manifest, nil
}
