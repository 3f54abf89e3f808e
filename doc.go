// Package s3upload uploads in-memory payloads to Amazon S3.
//
// Two strategies are offered. Upload sends the whole payload in one
// PutObject call. UploadMultipart splits it into numbered parts, uploads
// them concurrently and completes the upload with the ordered part list;
// any failure after initiation aborts the upload so no parts are left
// stored. UploadAuto picks between them by size.
//
// Every request carries a Content-MD5 header so the service rejects
// corrupted bodies. Failures are returned as *errors.Error values that
// match errors.ErrUploadFailed and name the failed stage:
//
//	result, err := client.UploadMultipart(ctx, "my-bucket", "backup.tar", data)
//	if errors.Is(err, s3errors.ErrUploadFailed) {
//	    log.Printf("upload failed at %s", s3errors.StageOf(err))
//	}
//
// Logging uses log/slog and is disabled unless WithLogger is given.
// Prometheus collectors are registered with WithMetrics.
package s3upload
