// Package multipart handles multipart upload operations with concurrent part
// uploads and best-effort cleanup of failed sessions.
//
// An upload runs initiate, plan, dispatch, gather, assemble and finalize in
// that order. Parts are uploaded by a bounded errgroup; the first failing part
// cancels the others, and any failure after initiation aborts the session.
package multipart
