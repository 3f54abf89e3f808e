// Package planner splits an object into the byte ranges of a multipart upload.
//
// The part count is derived from MinPartSize and the ranges are an even
// division of the object, with the last range absorbing the remainder.
package planner
