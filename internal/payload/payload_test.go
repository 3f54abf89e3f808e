package payload

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantHex    string
		wantBase64 string
	}{
		{
			name:       "empty",
			data:       []byte{},
			wantHex:    "d41d8cd98f00b204e9800998ecf8427e",
			wantBase64: "1B2M2Y8AsgTpgAmY7PhCfg==",
		},
		{
			name:       "hello world",
			data:       []byte("Hello, World!"),
			wantHex:    "65a8e27d8879283831b664bd8b7f0ad4",
			wantBase64: "ZajifYh5KDgxtmS9i38K1A==",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Build(tt.data)

			assert.Equal(t, int64(len(tt.data)), p.Length)
			assert.Equal(t, tt.wantHex, p.ETagHint())
			assert.Equal(t, tt.wantBase64, p.ContentMD5())
		})
	}
}

func TestBuild_Idempotent(t *testing.T) {
	data := []byte("the same bytes twice")

	first := Build(data)
	second := Build(append([]byte(nil), data...))

	assert.Equal(t, first.MD5, second.MD5)
	assert.Equal(t, first.Length, second.Length)
}

func TestBuild_DigestCoversExactRange(t *testing.T) {
	data := []byte("0123456789")

	whole := Build(data)
	head := Build(data[:5])

	assert.NotEqual(t, whole.MD5, head.MD5)
	assert.Equal(t, int64(5), head.Length)
}

func TestPayload_Reader(t *testing.T) {
	p := Build([]byte("body"))

	for i := 0; i < 2; i++ {
		got, err := io.ReadAll(p.Reader())
		require.NoError(t, err)
		assert.Equal(t, "body", string(got))
	}
}
