package multipart

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // verifying Content-MD5
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

const testUploadID = "upload-123"

// recordedPart is what the mock server saw for one UploadPart call.
type recordedPart struct {
	number int32
	body   []byte
	md5    string
	length int64
}

// fakeService is a MockS3Client whose multipart calls behave like a small
// in-memory service.
type fakeService struct {
	*testutil.MockS3Client

	mu       sync.Mutex
	parts    map[int32]recordedPart
	complete *s3.CompleteMultipartUploadInput
	create   *s3.CreateMultipartUploadInput
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		MockS3Client: &testutil.MockS3Client{},
		parts:        make(map[int32]recordedPart),
	}
	f.CreateMultipartUploadFunc = func(
		_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options),
	) (*s3.CreateMultipartUploadOutput, error) {
		f.mu.Lock()
		f.create = in
		f.mu.Unlock()
		return &s3.CreateMultipartUploadOutput{UploadId: aws.String(testUploadID)}, nil
	}
	f.UploadPartFunc = func(
		_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		return f.storePart(in)
	}
	f.CompleteMultipartUploadFunc = func(
		_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options),
	) (*s3.CompleteMultipartUploadOutput, error) {
		f.mu.Lock()
		f.complete = in
		f.mu.Unlock()
		return &s3.CompleteMultipartUploadOutput{ETag: aws.String(`"final-etag-3"`)}, nil
	}
	return f
}

func (f *fakeService) storePart(in *s3.UploadPartInput) (*s3.UploadPartOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	number := aws.ToInt32(in.PartNumber)

	f.mu.Lock()
	f.parts[number] = recordedPart{
		number: number,
		body:   body,
		md5:    aws.ToString(in.ContentMD5),
		length: aws.ToInt64(in.ContentLength),
	}
	f.mu.Unlock()

	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"etag-%d"`, number))}, nil
}

func newTestUploader(api *testutil.MockS3Client, opts ...Option) *Uploader {
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return NewUploader(api, opts...)
}

func TestUploader_Upload_16MiB(t *testing.T) {
	data := testutil.GenerateRandomData(16*1024*1024, 1)
	svc := newFakeService(t)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	uploader := newTestUploader(svc.MockS3Client, WithMetrics(m))
	result, err := uploader.Upload(context.Background(), "test-bucket", "big.bin", data,
		&s3types.UploadConfig{ContentType: "application/octet-stream"})
	require.NoError(t, err)

	assert.Equal(t, `"final-etag-3"`, result.ETag)
	assert.Equal(t, 3, result.Parts)
	assert.Equal(t, testUploadID, result.UploadID)
	assert.Equal(t, int64(len(data)), result.Size)

	assert.Equal(t, 1, svc.Calls("CreateMultipartUpload"))
	assert.Equal(t, 3, svc.Calls("UploadPart"))
	assert.Equal(t, 1, svc.Calls("CompleteMultipartUpload"))
	assert.Equal(t, 0, svc.Calls("AbortMultipartUpload"))

	// initiate carries the whole-object digest
	sum := md5.Sum(data) //nolint:gosec
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), svc.create.Metadata[MetadataContentMD5])
	assert.Equal(t, "application/octet-stream", aws.ToString(svc.create.ContentType))

	// finalize references all three tokens in order
	require.NotNil(t, svc.complete)
	assert.Equal(t, testUploadID, aws.ToString(svc.complete.UploadId))
	parts := svc.complete.MultipartUpload.Parts
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, int32(i+1), aws.ToInt32(p.PartNumber))
		assert.Equal(t, fmt.Sprintf(`"etag-%d"`, i+1), aws.ToString(p.ETag))
	}

	// parts reassemble into the original, each with a matching digest
	var joined bytes.Buffer
	var total int64
	for n := int32(1); n <= 3; n++ {
		part := svc.parts[n]
		partSum := md5.Sum(part.body) //nolint:gosec
		assert.Equal(t, base64.StdEncoding.EncodeToString(partSum[:]), part.md5)
		assert.Equal(t, int64(len(part.body)), part.length)
		total += part.length
		joined.Write(part.body)
	}
	assert.Equal(t, int64(len(data)), total)
	assert.True(t, bytes.Equal(data, joined.Bytes()))

	assert.Equal(t, 3.0, promtest.ToFloat64(m.PartsTotal.WithLabelValues(metrics.StatusSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.UploadsTotal.WithLabelValues(s3types.ModeMultipart, metrics.StatusSuccess)))
}

func TestUploader_Upload_EmptyPayload(t *testing.T) {
	svc := newFakeService(t)

	result, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "empty", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Parts)
	assert.Equal(t, 1, svc.Calls("UploadPart"))
	assert.Empty(t, svc.parts[1].body)
}

func TestUploader_Upload_ContentType(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		config *s3types.UploadConfig
		want   string
	}{
		{name: "detected when unset", data: []byte("plain text body"), config: nil, want: "text/plain; charset=utf-8"},
		{
			name:   "explicit wins",
			data:   []byte("plain text body"),
			config: &s3types.UploadConfig{ContentType: "application/x-ndjson"},
			want:   "application/x-ndjson",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)

			_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", tt.data, tt.config)
			require.NoError(t, err)

			require.NotNil(t, svc.create)
			assert.Equal(t, tt.want, aws.ToString(svc.create.ContentType))
		})
	}
}

func TestUploader_Upload_ManifestOrderedDespiteArrivalOrder(t *testing.T) {
	data := testutil.GenerateRandomData(int(6*planner.MinPartSize), 2)
	svc := newFakeService(t)

	var arrival []int32
	var mu sync.Mutex
	svc.UploadPartFunc = func(
		_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		n := aws.ToInt32(in.PartNumber)
		// higher part numbers finish first
		time.Sleep(time.Duration(7-n) * 15 * time.Millisecond)
		mu.Lock()
		arrival = append(arrival, n)
		mu.Unlock()
		return svc.storePart(in)
	}

	result, err := newTestUploader(svc.MockS3Client, WithConcurrency(6)).
		Upload(context.Background(), "b", "k", data, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Parts)

	assert.False(t, sort.SliceIsSorted(arrival, func(i, j int) bool { return arrival[i] < arrival[j] }),
		"parts should have completed out of order")

	parts := svc.complete.MultipartUpload.Parts
	require.Len(t, parts, 6)
	for i, p := range parts {
		assert.Equal(t, int32(i+1), aws.ToInt32(p.PartNumber))
	}
}

func TestUploader_Upload_InitiateFailure(t *testing.T) {
	svc := newFakeService(t)
	svc.CreateMultipartUploadFunc = func(
		context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options),
	) (*s3.CreateMultipartUploadOutput, error) {
		return nil, errors.New("access denied")
	}

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", []byte("data"), nil)

	require.Error(t, err)
	assert.True(t, uerrors.IsUploadFailed(err))
	assert.True(t, uerrors.IsTransport(err))
	assert.Equal(t, uerrors.StageInitiate, uerrors.StageOf(err))
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, 0, svc.Calls("UploadPart"))
	assert.Equal(t, 0, svc.Calls("CompleteMultipartUpload"))
	assert.Equal(t, 0, svc.Calls("AbortMultipartUpload"))
}

func TestUploader_Upload_MissingUploadID(t *testing.T) {
	svc := newFakeService(t)
	svc.CreateMultipartUploadFunc = func(
		context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options),
	) (*s3.CreateMultipartUploadOutput, error) {
		return &s3.CreateMultipartUploadOutput{}, nil
	}

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", []byte("data"), nil)

	require.Error(t, err)
	assert.Equal(t, uerrors.StageInitiate, uerrors.StageOf(err))
	assert.Equal(t, 0, svc.Calls("UploadPart"))
}

func TestUploader_Upload_PartFailure(t *testing.T) {
	data := testutil.GenerateRandomData(16*1024*1024, 3)
	svc := newFakeService(t)
	var abortInput *s3.AbortMultipartUploadInput
	svc.UploadPartFunc = func(
		_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		if aws.ToInt32(in.PartNumber) == 2 {
			return nil, errors.New("connection reset by peer")
		}
		return svc.storePart(in)
	}
	svc.AbortMultipartUploadFunc = func(
		_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options),
	) (*s3.AbortMultipartUploadOutput, error) {
		abortInput = in
		return &s3.AbortMultipartUploadOutput{}, nil
	}
	tracker := &testutil.MockProgressTracker{}

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", data,
		&s3types.UploadConfig{ProgressTracker: tracker})

	require.Error(t, err)
	assert.True(t, uerrors.IsUploadFailed(err))
	assert.True(t, uerrors.IsTransport(err))
	assert.Equal(t, uerrors.StagePart, uerrors.StageOf(err))
	assert.Equal(t, int32(2), partOf(err))
	assert.Contains(t, err.Error(), "connection reset by peer")

	assert.Equal(t, 0, svc.Calls("CompleteMultipartUpload"))
	assert.Equal(t, 1, svc.Calls("AbortMultipartUpload"))
	require.NotNil(t, abortInput)
	assert.Equal(t, testUploadID, aws.ToString(abortInput.UploadId))

	assert.True(t, tracker.ErrorCalled)
	assert.False(t, tracker.CompleteCalled)
}

func TestUploader_Upload_PartFailureCancelsOthers(t *testing.T) {
	data := testutil.GenerateRandomData(int(3*planner.MinPartSize), 4)
	svc := newFakeService(t)
	var cancelled atomic.Int32
	svc.UploadPartFunc = func(
		ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		if aws.ToInt32(in.PartNumber) == 1 {
			return nil, errors.New("part one failed")
		}
		select {
		case <-ctx.Done():
			cancelled.Add(1)
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return svc.storePart(in)
		}
	}

	start := time.Now()
	_, err := newTestUploader(svc.MockS3Client, WithConcurrency(3)).
		Upload(context.Background(), "b", "k", data, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "part one failed")
	assert.Equal(t, int32(1), partOf(err))
	// parts not yet started are skipped, started ones see cancellation
	assert.LessOrEqual(t, cancelled.Load(), int32(2))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, svc.Calls("AbortMultipartUpload"))
}

func TestUploader_Upload_MissingPartETag(t *testing.T) {
	svc := newFakeService(t)
	svc.UploadPartFunc = func(
		context.Context, *s3.UploadPartInput, ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		return &s3.UploadPartOutput{}, nil
	}

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", []byte("x"), nil)

	require.Error(t, err)
	assert.Equal(t, uerrors.StagePart, uerrors.StageOf(err))
	assert.Contains(t, err.Error(), "no ETag")
	assert.Equal(t, 0, svc.Calls("CompleteMultipartUpload"))
	assert.Equal(t, 1, svc.Calls("AbortMultipartUpload"))
}

func TestUploader_Upload_CompleteFailure(t *testing.T) {
	svc := newFakeService(t)
	svc.CompleteMultipartUploadFunc = func(
		context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options),
	) (*s3.CompleteMultipartUploadOutput, error) {
		return nil, errors.New("invalid part order")
	}

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", []byte("data"), nil)

	require.Error(t, err)
	assert.Equal(t, uerrors.StageComplete, uerrors.StageOf(err))
	assert.True(t, uerrors.IsTransport(err))
	assert.Equal(t, 1, svc.Calls("AbortMultipartUpload"))
}

func TestUploader_Upload_AbortFailureKeepsCause(t *testing.T) {
	svc := newFakeService(t)
	svc.UploadPartFunc = func(
		context.Context, *s3.UploadPartInput, ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		return nil, errors.New("part failed")
	}
	svc.AbortMultipartUploadFunc = func(
		context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options),
	) (*s3.AbortMultipartUploadOutput, error) {
		return nil, errors.New("abort failed")
	}
	m, err := metrics.New(nil)
	require.NoError(t, err)

	_, err = newTestUploader(svc.MockS3Client, WithMetrics(m)).
		Upload(context.Background(), "b", "k", []byte("data"), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "part failed")
	assert.NotContains(t, err.Error(), "abort failed")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.AbortsTotal.WithLabelValues(metrics.StatusError)))
}

func TestUploader_Upload_AbortSurvivesCancellation(t *testing.T) {
	svc := newFakeService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.UploadPartFunc = func(
		context.Context, *s3.UploadPartInput, ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		cancel()
		return nil, context.Canceled
	}
	var abortCtxErr error
	svc.AbortMultipartUploadFunc = func(
		ctx context.Context, _ *s3.AbortMultipartUploadInput, _ ...func(*s3.Options),
	) (*s3.AbortMultipartUploadOutput, error) {
		abortCtxErr = ctx.Err()
		return &s3.AbortMultipartUploadOutput{}, nil
	}

	_, err := newTestUploader(svc.MockS3Client).Upload(ctx, "b", "k", []byte("data"), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, svc.Calls("AbortMultipartUpload"))
	assert.NoError(t, abortCtxErr)
}

func TestUploader_Upload_CallTimeout(t *testing.T) {
	svc := newFakeService(t)
	svc.UploadPartFunc = func(
		ctx context.Context, _ *s3.UploadPartInput, _ ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := newTestUploader(svc.MockS3Client, WithCallTimeout(20*time.Millisecond)).
		Upload(context.Background(), "b", "k", []byte("data"), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uerrors.StagePart, uerrors.StageOf(err))
}

func TestUploader_Upload_ConcurrencyLimit(t *testing.T) {
	data := testutil.GenerateRandomData(int(8*planner.MinPartSize), 5)
	svc := newFakeService(t)
	var inFlight, peak atomic.Int32
	svc.UploadPartFunc = func(
		_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
	) (*s3.UploadPartOutput, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return svc.storePart(in)
	}

	result, err := newTestUploader(svc.MockS3Client, WithConcurrency(5)).
		Upload(context.Background(), "b", "k", data, &s3types.UploadConfig{Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 8, result.Parts)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestUploader_Upload_Progress(t *testing.T) {
	data := testutil.GenerateRandomData(int(2*planner.MinPartSize)+10, 6)
	svc := newFakeService(t)
	tracker := &testutil.MockProgressTracker{}

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", data,
		&s3types.UploadConfig{ProgressTracker: tracker})
	require.NoError(t, err)

	assert.True(t, tracker.CompleteCalled)
	assert.Len(t, tracker.Updates, 2)
	assert.Equal(t, int64(len(data)), tracker.BytesTransferred)
	assert.Equal(t, int64(len(data)), tracker.TotalBytes)
}

func TestUploader_Upload_MetadataPreserved(t *testing.T) {
	svc := newFakeService(t)

	_, err := newTestUploader(svc.MockS3Client).Upload(context.Background(), "b", "k", []byte("data"),
		&s3types.UploadConfig{
			Metadata:     map[string]string{"author": "test"},
			StorageClass: s3types.StorageClassStandardIA,
		})
	require.NoError(t, err)

	assert.Equal(t, "test", svc.create.Metadata["author"])
	assert.NotEmpty(t, svc.create.Metadata[MetadataContentMD5])
	assert.Equal(t, "STANDARD_IA", string(svc.create.StorageClass))
}
