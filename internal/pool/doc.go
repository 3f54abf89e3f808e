// Package pool manages S3 client handles for upload operations.
//
// Each upload acquires one Lease for its whole lifetime and releases it on
// every exit path. All remote calls of that upload, including the concurrent
// part uploads of a multipart upload, share the leased handle.
package pool
