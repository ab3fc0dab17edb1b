//go:build windows

package fssink

import (
	"fmt"

	"github.com/squashfs/go-squashfs/squashfs"
)

// OnSpecial implements squashfs.Sink. Device nodes, fifos, and sockets
// have no Windows materialization; the event is reported as a warning
// and otherwise ignored.
func (fs *FS) OnSpecial(path string, kind squashfs.SpecialKind, major, minor uint32, meta squashfs.Meta) error {
	fs.warn(squashfs.KindSinkRefused, fmt.Sprintf("%s %q not supported on windows", kind, path))
	return nil
}
