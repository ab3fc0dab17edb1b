//go:build unix

package fssink

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/squashfs/go-squashfs/squashfs"
)

// OnSpecial implements squashfs.Sink by creating a device node, fifo,
// or socket with unix.Mknod.
func (fs *FS) OnSpecial(path string, kind squashfs.SpecialKind, major, minor uint32, meta squashfs.Meta) error {
	dest := fs.dest(path)
	_ = os.Remove(dest)

	var mode uint32
	switch kind {
	case squashfs.SpecialBlockDevice:
		mode = unix.S_IFBLK
	case squashfs.SpecialCharDevice:
		mode = unix.S_IFCHR
	case squashfs.SpecialFifo:
		mode = unix.S_IFIFO
	case squashfs.SpecialSocket:
		mode = unix.S_IFSOCK
	}
	mode |= uint32(meta.Mode.Perm())

	dev := 0
	if kind == squashfs.SpecialBlockDevice || kind == squashfs.SpecialCharDevice {
		dev = int(unix.Mkdev(major, minor))
	}

	if err := unix.Mknod(dest, mode, dev); err != nil {
		return err
	}
	fs.applyMeta(dest, meta)
	return nil
}
