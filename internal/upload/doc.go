// Package upload performs single-shot object uploads: the whole payload in
// one PutObject call with its Content-MD5.
package upload
