// Package testutil provides test helper functions.
package testutil

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// GenerateRandomData generates deterministic pseudo-random bytes of the
// specified size from seed.
func GenerateRandomData(size int, seed int64) []byte {
	data := make([]byte, size)
	rng := rand.New(rand.NewSource(seed))
	_, _ = rng.Read(data)
	return data
}

// ReadBody drains an SDK request body inside a mock.
func ReadBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	require.NotNil(t, body)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
