package squashfs

import "encoding/binary"

const (
	dirMaxEntriesPerHeader = 256
	dirHeaderSize          = 12
	dirEntryFixedSize      = 8
	dirFileSizeTrailer     = 3
)

// dirEntry is one child yielded by the directory walker: a name, the
// child's inode reference reconstructed from the header's start_block
// plus the entry's own offset, its informational inode number, and the
// entry's type hint. The traversal driver reads every child's inode and
// decides recursion from the inode's own type, not from this hint.
type dirEntry struct {
	name        string
	childRef    InodeRef
	inodeNumber uint32
	typeHint    InodeType
}

func (e dirEntry) isDirHint() bool {
	return e.typeHint == TypeBasicDirectory || e.typeHint == TypeExtendedDirectory
}

// parseDirectoryEntries decodes a directory table's (header, entries)*
// sequence. encodedSize must already have the file_size trailer's
// fixed +3 offset subtracted by the caller — this function does not
// know about file_size, only the bytes it was handed.
func parseDirectoryEntries(b []byte, encodedSize int) ([]dirEntry, error) {
	if encodedSize < 0 || encodedSize > len(b) {
		return nil, errDirectoryMalformed("encoded size exceeds available bytes")
	}
	b = b[:encodedSize]

	var entries []dirEntry
	pos := 0
	for pos < len(b) {
		if len(b[pos:]) < dirHeaderSize {
			return nil, errDirectoryMalformed("truncated directory header")
		}
		count := binary.LittleEndian.Uint32(b[pos:pos+4]) + 1
		startBlock := binary.LittleEndian.Uint32(b[pos+4 : pos+8])
		base := binary.LittleEndian.Uint32(b[pos+8 : pos+12])
		pos += dirHeaderSize

		if count > dirMaxEntriesPerHeader {
			return nil, errDirectoryMalformed("directory header claims more than 256 entries")
		}

		for i := uint32(0); i < count; i++ {
			if len(b[pos:]) < dirEntryFixedSize {
				return nil, errDirectoryMalformed("truncated directory entry")
			}
			offset := binary.LittleEndian.Uint16(b[pos : pos+2])
			delta := int16(binary.LittleEndian.Uint16(b[pos+2 : pos+4]))
			typeHint := InodeType(binary.LittleEndian.Uint16(b[pos+4 : pos+6]))
			nameSize := int(binary.LittleEndian.Uint16(b[pos+6:pos+8])) + 1
			pos += dirEntryFixedSize

			if len(b[pos:]) < nameSize {
				return nil, errDirectoryMalformed("truncated directory entry name")
			}
			name := string(b[pos : pos+nameSize])
			pos += nameSize

			entries = append(entries, dirEntry{
				name:        name,
				childRef:    newInodeRef(startBlock, offset),
				inodeNumber: uint32(int32(base) + int32(delta)),
				typeHint:    typeHint,
			})
		}
	}
	return entries, nil
}
