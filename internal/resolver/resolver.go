// Package resolver turns local file paths into upload payloads.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
)

// File is a resolved local file.
type File struct {
	// Name is the base name of the file, used as the default object key
	Name string
	Data []byte
}

// Resolver reads files from a billy filesystem.
type Resolver struct {
	fs billy.Filesystem
	// host is set when fs is the host root, so relative paths are taken
	// from the working directory rather than from "/"
	host bool
}

// New creates a Resolver over fs. A nil fs resolves against the host root.
func New(fs billy.Filesystem) *Resolver {
	if fs == nil {
		return &Resolver{fs: osfs.New("/"), host: true}
	}
	return &Resolver{fs: fs}
}

// Filesystem returns the underlying filesystem.
func (r *Resolver) Filesystem() billy.Filesystem {
	return r.fs
}

// Path maps path onto the resolver's filesystem.
func (r *Resolver) Path(path string) string {
	if !r.host || path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Resolve reads the file at path. A missing path, or one naming a directory,
// yields an error matching errors.ErrFileNotFound.
func (r *Resolver) Resolve(path string) (*File, error) {
	if path == "" {
		return nil, uerrors.NewError("resolve", fmt.Errorf("%w: empty path", uerrors.ErrFileNotFound))
	}

	path = r.Path(path)
	info, err := r.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, uerrors.NewError("resolve", fmt.Errorf("%w: %s", uerrors.ErrFileNotFound, path))
		}
		return nil, uerrors.NewError("resolve", fmt.Errorf("stat %s: %w", path, err))
	}
	if info.IsDir() {
		return nil, uerrors.NewError("resolve", fmt.Errorf("%w: %s is a directory", uerrors.ErrFileNotFound, path))
	}

	data, err := util.ReadFile(r.fs, path)
	if err != nil {
		return nil, uerrors.NewError("resolve", fmt.Errorf("reading %s: %w", path, err))
	}

	return &File{Name: filepath.Base(path), Data: data}, nil
}
