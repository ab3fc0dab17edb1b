// Package fssink is the reference implementation of squashfs.Sink: it
// materializes a decoded image's extraction events onto a real host
// directory tree.
package fssink

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/xattr"

	"github.com/squashfs/go-squashfs/squashfs"
)

// Options configures how events are materialized.
type Options struct {
	// OutputRoot is the host directory extraction is rooted at. It is
	// created if missing.
	OutputRoot string

	// ApplyMetadata, when true, chmods/chtimes directories and files and
	// applies extended attributes captured on the inode. When false, the
	// sink only creates names and writes file content.
	ApplyMetadata bool
}

// FS is a squashfs.Sink that writes into a host directory. Warnings
// accumulate rather than aborting: the sink is never the one that
// decides fatality.
type FS struct {
	opts     Options
	warnings []Warning

	current     *os.File
	currentBuf  *bufio.Writer
	currentPath string
	pendingMeta squashfs.Meta
}

// Warning records one non-fatal event surfaced by either the decoder
// or the sink's own materialization step.
type Warning struct {
	Kind   squashfs.Kind
	Detail string
}

// New creates a sink rooted at opts.OutputRoot, creating the directory
// if it does not already exist.
func New(opts Options) (*FS, error) {
	if err := os.MkdirAll(opts.OutputRoot, 0o755); err != nil {
		return nil, err
	}
	return &FS{opts: opts}, nil
}

// Warnings returns every warning accumulated so far, decoder- and
// sink-originated alike.
func (fs *FS) Warnings() []Warning { return fs.warnings }

func (fs *FS) dest(p string) string {
	return filepath.Join(fs.opts.OutputRoot, filepath.FromSlash(p))
}

func (fs *FS) applyMeta(path string, meta squashfs.Meta) {
	if !fs.opts.ApplyMetadata {
		return
	}
	if err := os.Chmod(path, meta.Mode); err != nil {
		fs.warn(squashfs.KindSinkRefused, "chmod "+path+": "+err.Error())
	}
	if err := os.Chtimes(path, meta.ModTime, meta.ModTime); err != nil {
		fs.warn(squashfs.KindSinkRefused, "chtimes "+path+": "+err.Error())
	}
	for name, value := range meta.Xattrs {
		if err := xattr.Set(path, name, []byte(value)); err != nil {
			fs.warn(squashfs.KindSinkRefused, "xattr "+name+" on "+path+": "+err.Error())
		}
	}
}

func (fs *FS) warn(kind squashfs.Kind, detail string) {
	fs.warnings = append(fs.warnings, Warning{Kind: kind, Detail: detail})
}

// OnDir implements squashfs.Sink.
func (fs *FS) OnDir(path string, meta squashfs.Meta) error {
	dest := fs.dest(path)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	fs.applyMeta(dest, meta)
	return nil
}

// OnFileBegin implements squashfs.Sink.
func (fs *FS) OnFileBegin(path string, meta squashfs.Meta, size int64) error {
	dest := fs.dest(path)
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, meta.Mode.Perm())
	if err != nil {
		return err
	}
	fs.current = f
	fs.currentBuf = bufio.NewWriter(f)
	fs.currentPath = dest
	fs.pendingMeta = meta
	return nil
}

// OnFileChunk implements squashfs.Sink.
func (fs *FS) OnFileChunk(data []byte) error {
	_, err := fs.currentBuf.Write(data)
	return err
}

// OnFileEnd implements squashfs.Sink.
func (fs *FS) OnFileEnd() error {
	if err := fs.currentBuf.Flush(); err != nil {
		fs.current.Close()
		return err
	}
	err := fs.current.Close()
	fs.applyMeta(fs.currentPath, fs.pendingMeta)
	fs.current, fs.currentBuf, fs.currentPath = nil, nil, ""
	return err
}

// OnSymlink implements squashfs.Sink.
func (fs *FS) OnSymlink(path, target string, meta squashfs.Meta) error {
	dest := fs.dest(path)
	_ = os.Remove(dest)
	if err := os.Symlink(target, dest); err != nil {
		return err
	}
	// chmod/chtimes on symlinks themselves is skipped: most platforms
	// apply them to the target instead, which would corrupt it.
	return nil
}

// OnWarning implements squashfs.Sink, accumulating decoder-originated
// warnings alongside the sink's own.
func (fs *FS) OnWarning(kind squashfs.Kind, detail string) {
	fs.warn(kind, detail)
}
