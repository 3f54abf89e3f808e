// Package payload builds the transmittable unit of an upload: the bytes of
// an object or part together with their length and MD5 digest.
package payload

import (
	"bytes"
	"crypto/md5" //nolint:gosec // Content-MD5 is an integrity check mandated by S3, not a security primitive.
	"encoding/base64"
	"encoding/hex"
)

// Payload is an immutable byte range with its integrity metadata.
// The backing slice is shared with the caller and must not be modified
// while the payload is in flight.
type Payload struct {
	Bytes  []byte
	Length int64
	MD5    [md5.Size]byte
}

// Build computes the digest and length of b. It performs no I/O.
func Build(b []byte) Payload {
	return Payload{
		Bytes:  b,
		Length: int64(len(b)),
		MD5:    md5.Sum(b), //nolint:gosec // see import
	}
}

// ContentMD5 returns the base64 digest used for the Content-MD5 header.
func (p Payload) ContentMD5() string {
	return base64.StdEncoding.EncodeToString(p.MD5[:])
}

// ETagHint returns the hex digest. For single-part, unencrypted objects the
// service reports this as the ETag.
func (p Payload) ETagHint() string {
	return hex.EncodeToString(p.MD5[:])
}

// Reader returns a fresh reader over the payload bytes.
func (p Payload) Reader() *bytes.Reader {
	return bytes.NewReader(p.Bytes)
}
