package squashfs

import (
	"errors"
	"os"
	"path"
	"time"
)

// SpecialKind classifies a non-regular, non-directory, non-symlink
// inode for the OnSpecial sink callback.
type SpecialKind int

const (
	SpecialBlockDevice SpecialKind = iota
	SpecialCharDevice
	SpecialFifo
	SpecialSocket
)

func (k SpecialKind) String() string {
	switch k {
	case SpecialBlockDevice:
		return "block"
	case SpecialCharDevice:
		return "char"
	case SpecialFifo:
		return "fifo"
	case SpecialSocket:
		return "socket"
	default:
		return "special"
	}
}

// Meta is the metadata bundle attached to every extraction event.
type Meta struct {
	Mode    os.FileMode
	UID     uint32
	GID     uint32
	ModTime time.Time
	Xattrs  map[string]string
}

// Sink receives the depth-first pre-order stream of extraction events.
// It decides how, or whether, to materialize each event; the driver
// never inspects what a sink did with one.
type Sink interface {
	OnDir(path string, meta Meta) error
	OnFileBegin(path string, meta Meta, size int64) error
	OnFileChunk(data []byte) error
	OnFileEnd() error
	OnSymlink(path, target string, meta Meta) error
	OnSpecial(path string, kind SpecialKind, major, minor uint32, meta Meta) error
	OnWarning(kind Kind, detail string)
}

// WalkOptions configures the traversal driver itself (as opposed to
// the sink, which is configured separately by its own constructor).
type WalkOptions struct {
	// Lenient converts InodeTypeUnknown, DirectoryMalformed, and
	// FileSizeMismatch into warnings and skips the offending entry's
	// subtree instead of aborting the whole walk.
	Lenient bool
}

// Walk starts at the image's root inode and emits events to sink in
// depth-first pre-order: for siblings A before B on disk, all of A's
// events precede any of B's.
func Walk(img *Image, sink Sink, opts WalkOptions) error {
	root, err := img.inode(img.RootRef())
	if err != nil {
		return err
	}
	return img.walkDir(root, "/", sink, opts)
}

func kindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindSinkRefused
}

// resolveMeta builds the Meta bundle for an inode, downgrading a
// missing xattr store into a warning rather than failing the entry.
func (img *Image) resolveMeta(header inodeHeader, body inodeBody, sink Sink) (Meta, error) {
	uid, gid, err := img.resolveOwner(header)
	if err != nil {
		return Meta{}, err
	}
	xattrs, err := img.resolveXattrs(body)
	if err != nil {
		var se *Error
		if errors.As(err, &se) && !se.Kind.Fatal() {
			sink.OnWarning(se.Kind, se.Detail)
		} else {
			return Meta{}, err
		}
	}
	return Meta{Mode: header.mode, UID: uid, GID: gid, ModTime: header.modTime, Xattrs: xattrs}, nil
}

func (img *Image) walkDir(n *Inode, p string, sink Sink, opts WalkOptions) error {
	body, ok := n.body.(dirBody)
	if !ok {
		return errDirectoryMalformed("expected directory inode body")
	}
	meta, err := img.resolveMeta(n.header, body, sink)
	if err != nil {
		return err
	}
	if err := sink.OnDir(p, meta); err != nil {
		sink.OnWarning(KindSinkRefused, err.Error())
	}

	entries, err := img.directoryEntries(body)
	if err != nil {
		return img.handleEntryError(err, sink, opts)
	}

	for _, e := range entries {
		if err := img.walkEntry(e, p, sink, opts); err != nil {
			if handled := img.handleEntryError(err, sink, opts); handled != nil {
				return handled
			}
		}
	}
	return nil
}

// handleEntryError applies the lenient-mode downgrade rule: in lenient
// mode, InodeTypeUnknown/DirectoryMalformed/FileSizeMismatch become
// warnings and the offending entry is skipped; otherwise (or for any
// other kind) the error propagates unchanged.
func (img *Image) handleEntryError(err error, sink Sink, opts WalkOptions) error {
	k := kindOf(err)
	if opts.Lenient && k.lenientEligible() {
		sink.OnWarning(k, err.Error())
		return nil
	}
	return err
}

func (img *Image) walkEntry(e dirEntry, parentPath string, sink Sink, opts WalkOptions) error {
	child, err := img.inode(e.childRef)
	if err != nil {
		return err
	}
	childPath := path.Join(parentPath, e.name)

	switch {
	case child.Type().isDir():
		return img.walkDir(child, childPath, sink, opts)
	case child.Type().isFile():
		return img.emitFile(child, childPath, sink)
	case child.Type().isSymlink():
		return img.emitSymlink(child, childPath, sink)
	case child.Type().isDevice():
		return img.emitDevice(child, childPath, sink)
	case child.Type().isIPC():
		return img.emitIPC(child, childPath, sink)
	default:
		return errInodeTypeUnknown(uint16(child.Type()))
	}
}

func (img *Image) emitFile(n *Inode, p string, sink Sink) error {
	body, ok := n.body.(fileBody)
	if !ok {
		return errDirectoryMalformed("expected file inode body")
	}
	meta, err := img.resolveMeta(n.header, body, sink)
	if err != nil {
		return err
	}
	if err := sink.OnFileBegin(p, meta, int64(body.fileSize)); err != nil {
		sink.OnWarning(KindSinkRefused, err.Error())
		return nil
	}

	streamErr := img.streamFile(body, sink.OnFileChunk)
	if streamErr != nil {
		var se *Error
		if errors.As(streamErr, &se) {
			return se
		}
		// the error originated in the sink's OnFileChunk, not decoding.
		sink.OnWarning(KindSinkRefused, streamErr.Error())
		return nil
	}

	if err := sink.OnFileEnd(); err != nil {
		sink.OnWarning(KindSinkRefused, err.Error())
	}
	return nil
}

func (img *Image) emitSymlink(n *Inode, p string, sink Sink) error {
	body, ok := n.body.(symlinkBody)
	if !ok {
		return errDirectoryMalformed("expected symlink inode body")
	}
	meta, err := img.resolveMeta(n.header, body, sink)
	if err != nil {
		return err
	}
	if err := sink.OnSymlink(p, body.target, meta); err != nil {
		sink.OnWarning(KindSinkRefused, err.Error())
	}
	return nil
}

func (img *Image) emitDevice(n *Inode, p string, sink Sink) error {
	body, ok := n.body.(deviceBody)
	if !ok {
		return errDirectoryMalformed("expected device inode body")
	}
	meta, err := img.resolveMeta(n.header, body, sink)
	if err != nil {
		return err
	}
	kind := SpecialBlockDevice
	if n.Type() == TypeBasicCharDevice || n.Type() == TypeExtendedCharDev {
		kind = SpecialCharDevice
	}
	if err := sink.OnSpecial(p, kind, body.major, body.minor, meta); err != nil {
		sink.OnWarning(KindSinkRefused, err.Error())
	}
	return nil
}

func (img *Image) emitIPC(n *Inode, p string, sink Sink) error {
	body, ok := n.body.(ipcBody)
	if !ok {
		return errDirectoryMalformed("expected fifo/socket inode body")
	}
	meta, err := img.resolveMeta(n.header, body, sink)
	if err != nil {
		return err
	}
	kind := SpecialFifo
	if n.Type() == TypeBasicSocket || n.Type() == TypeExtendedSocket {
		kind = SpecialSocket
	}
	if err := sink.OnSpecial(p, kind, 0, 0, meta); err != nil {
		sink.OnWarning(KindSinkRefused, err.Error())
	}
	return nil
}
