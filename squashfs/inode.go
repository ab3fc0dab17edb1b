package squashfs

import (
	"encoding/binary"
	"os"
	"time"
)

// InodeType is the type code at the front of every inode record.
// Types 1-7 are the "basic" variants; 8-14 are their "extended"
// counterparts, carrying an extra xattr index and wider size fields.
type InodeType uint16

const (
	TypeBasicDirectory    InodeType = 1
	TypeBasicFile         InodeType = 2
	TypeBasicSymlink      InodeType = 3
	TypeBasicBlockDevice  InodeType = 4
	TypeBasicCharDevice   InodeType = 5
	TypeBasicFifo         InodeType = 6
	TypeBasicSocket       InodeType = 7
	TypeExtendedDirectory InodeType = 8
	TypeExtendedFile      InodeType = 9
	TypeExtendedSymlink   InodeType = 10
	TypeExtendedBlockDev  InodeType = 11
	TypeExtendedCharDev   InodeType = 12
	TypeExtendedFifo      InodeType = 13
	TypeExtendedSocket    InodeType = 14
)

func (t InodeType) valid() bool { return t >= TypeBasicDirectory && t <= TypeExtendedSocket }

func (t InodeType) isDir() bool    { return t == TypeBasicDirectory || t == TypeExtendedDirectory }
func (t InodeType) isFile() bool   { return t == TypeBasicFile || t == TypeExtendedFile }
func (t InodeType) isSymlink() bool {
	return t == TypeBasicSymlink || t == TypeExtendedSymlink
}
func (t InodeType) isDevice() bool {
	switch t {
	case TypeBasicBlockDevice, TypeBasicCharDevice, TypeExtendedBlockDev, TypeExtendedCharDev:
		return true
	default:
		return false
	}
}
func (t InodeType) isIPC() bool {
	switch t {
	case TypeBasicFifo, TypeBasicSocket, TypeExtendedFifo, TypeExtendedSocket:
		return true
	default:
		return false
	}
}

const inodeHeaderSize = 16

// inodeHeader is the common 16-byte prefix of every inode record.
type inodeHeader struct {
	kind    InodeType
	mode    os.FileMode
	uidIdx  uint16
	gidIdx  uint16
	modTime time.Time
	number  uint32
}

func parseInodeHeader(b []byte) (inodeHeader, error) {
	if len(b) < inodeHeaderSize {
		return inodeHeader{}, errTruncated(0, inodeHeaderSize, int64(len(b)))
	}
	kind := InodeType(binary.LittleEndian.Uint16(b[0:2]))
	if !kind.valid() {
		return inodeHeader{}, errInodeTypeUnknown(uint16(kind))
	}
	return inodeHeader{
		kind:    kind,
		mode:    os.FileMode(binary.LittleEndian.Uint16(b[2:4])),
		uidIdx:  binary.LittleEndian.Uint16(b[4:6]),
		gidIdx:  binary.LittleEndian.Uint16(b[6:8]),
		modTime: time.Unix(int64(binary.LittleEndian.Uint32(b[8:12])), 0),
		number:  binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// blockEntry is one entry of a file's block-sizes array. Bit 24
// ("stored uncompressed") and bit 25 ("not compressed because
// incompressible") are treated identically; size 0 means a sparse
// block.
type blockEntry struct {
	size         uint32
	uncompressed bool
}

const (
	blockUncompressedFlag   = 1 << 24
	blockIncompressibleFlag = 1 << 25
	blockSizeMask           = blockUncompressedFlag - 1
)

func parseBlockEntry(u uint32) blockEntry {
	return blockEntry{
		size:         u & blockSizeMask,
		uncompressed: u&(blockUncompressedFlag|blockIncompressibleFlag) != 0,
	}
}

func (b blockEntry) sparse() bool { return b.size == 0 }

// blockListLength computes how many full-block entries a file's
// block-sizes array holds: when a fragment holds the tail, the
// remainder is excluded from the block count; otherwise the trailing
// partial block gets an entry of its own.
func blockListLength(fileSize uint64, blockSize uint32, hasFragment bool) int {
	n := int(fileSize / uint64(blockSize))
	if !hasFragment && fileSize%uint64(blockSize) != 0 {
		n++
	}
	return n
}

func parseBlockList(b []byte, count int) []blockEntry {
	out := make([]blockEntry, 0, count)
	for i := 0; i < count && (i+1)*4 <= len(b); i++ {
		out = append(out, parseBlockEntry(binary.LittleEndian.Uint32(b[i*4:i*4+4])))
	}
	return out
}

// inodeBody is whatever follows the 16-byte header; concrete types are
// dirBody, fileBody, symlinkBody, deviceBody, ipcBody.
type inodeBody interface {
	xattrIndex() (uint32, bool)
}

// dirBody unifies basic (type 1) and extended (type 8) directory
// inodes: extended merely widens fileSize to 32 bits and adds an xattr
// index plus an optional fast-lookup index array.
type dirBody struct {
	startBlock  uint32
	offset      uint16
	fileSize    uint32
	links       uint32
	parentInode uint32
	xAttr       uint32
	hasXAttr    bool
}

func (d dirBody) xattrIndex() (uint32, bool) { return d.xAttr, d.hasXAttr }

func parseBasicDirBody(b []byte) (dirBody, error) {
	if len(b) < 16 {
		return dirBody{}, errTruncated(0, 16, int64(len(b)))
	}
	return dirBody{
		startBlock:  binary.LittleEndian.Uint32(b[0:4]),
		links:       binary.LittleEndian.Uint32(b[4:8]),
		fileSize:    uint32(binary.LittleEndian.Uint16(b[8:10])),
		offset:      binary.LittleEndian.Uint16(b[10:12]),
		parentInode: binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// extendedDirHeaderSize covers only the fixed fields; the variable
// fast-lookup index array that follows (squashfs_dir_index entries) is
// an optimization hint for very large directories that the directory
// walker does not need, so its bytes are consumed and discarded rather
// than parsed.
const extendedDirHeaderSize = 24
const dirIndexEntrySize = 3*4 + 1

func parseExtendedDirBody(b []byte) (dirBody, int, error) {
	if len(b) < extendedDirHeaderSize {
		return dirBody{}, 0, errTruncated(0, extendedDirHeaderSize, int64(len(b)))
	}
	indexCount := int(binary.LittleEndian.Uint16(b[16:18]))
	d := dirBody{
		links:       binary.LittleEndian.Uint32(b[0:4]),
		fileSize:    binary.LittleEndian.Uint32(b[4:8]),
		startBlock:  binary.LittleEndian.Uint32(b[8:12]),
		parentInode: binary.LittleEndian.Uint32(b[12:16]),
		offset:      binary.LittleEndian.Uint16(b[18:20]),
		xAttr:       binary.LittleEndian.Uint32(b[20:24]),
	}
	d.hasXAttr = d.xAttr != noXattrInode

	extra := indexCount * dirIndexEntrySize
	if len(b[extendedDirHeaderSize:]) < extra {
		return d, extra, nil
	}
	return d, 0, nil
}

// fileBody unifies basic (type 2) and extended (type 9) file inodes.
type fileBody struct {
	blocksStart    uint64
	fileSize       uint64
	fragmentIndex  uint32
	fragmentOffset uint32
	xAttr          uint32
	hasXAttr       bool
	blocks         []blockEntry
}

func (f fileBody) xattrIndex() (uint32, bool) { return f.xAttr, f.hasXAttr }
func (f fileBody) hasFragment() bool          { return f.fragmentIndex != fragmentNone }

func parseBasicFileBody(b []byte, blockSize int) (fileBody, int, error) {
	if len(b) < 16 {
		return fileBody{}, 0, errTruncated(0, 16, int64(len(b)))
	}
	fileSize := uint64(binary.LittleEndian.Uint32(b[12:16]))
	fragIdx := binary.LittleEndian.Uint32(b[4:8])
	f := fileBody{
		blocksStart:    uint64(binary.LittleEndian.Uint32(b[0:4])),
		fragmentIndex:  fragIdx,
		fragmentOffset: binary.LittleEndian.Uint32(b[8:12]),
		fileSize:       fileSize,
	}
	count := blockListLength(fileSize, uint32(blockSize), f.hasFragment())
	extra := count * 4
	if len(b[16:]) < extra {
		return f, extra, nil
	}
	f.blocks = parseBlockList(b[16:], count)
	return f, 0, nil
}

func parseExtendedFileBody(b []byte, blockSize int) (fileBody, int, error) {
	if len(b) < 40 {
		return fileBody{}, 0, errTruncated(0, 40, int64(len(b)))
	}
	fileSize := binary.LittleEndian.Uint64(b[8:16])
	fragIdx := binary.LittleEndian.Uint32(b[28:32])
	f := fileBody{
		blocksStart:    binary.LittleEndian.Uint64(b[0:8]),
		fileSize:       fileSize,
		fragmentIndex:  fragIdx,
		fragmentOffset: binary.LittleEndian.Uint32(b[32:36]),
		xAttr:          binary.LittleEndian.Uint32(b[36:40]),
	}
	f.hasXAttr = f.xAttr != noXattrInode
	count := blockListLength(fileSize, uint32(blockSize), f.hasFragment())
	extra := count * 4
	if len(b[40:]) < extra {
		return f, extra, nil
	}
	f.blocks = parseBlockList(b[40:], count)
	return f, 0, nil
}

// symlinkBody unifies basic (type 3) and extended (type 10) symlinks.
type symlinkBody struct {
	target   string
	xAttr    uint32
	hasXAttr bool
}

func (s symlinkBody) xattrIndex() (uint32, bool) { return s.xAttr, s.hasXAttr }

func parseBasicSymlinkBody(b []byte) (symlinkBody, int, error) {
	if len(b) < 8 {
		return symlinkBody{}, 0, errTruncated(0, 8, int64(len(b)))
	}
	targetSize := int(binary.LittleEndian.Uint32(b[4:8]))
	if len(b[8:]) < targetSize {
		return symlinkBody{}, targetSize, nil
	}
	return symlinkBody{target: string(b[8 : 8+targetSize])}, 0, nil
}

func parseExtendedSymlinkBody(b []byte) (symlinkBody, int, error) {
	if len(b) < 8 {
		return symlinkBody{}, 0, errTruncated(0, 8, int64(len(b)))
	}
	targetSize := int(binary.LittleEndian.Uint32(b[4:8]))
	extra := targetSize + 4
	if len(b[8:]) < extra {
		return symlinkBody{}, extra, nil
	}
	xAttr := binary.LittleEndian.Uint32(b[8+targetSize : 8+targetSize+4])
	return symlinkBody{
		target:   string(b[8 : 8+targetSize]),
		xAttr:    xAttr,
		hasXAttr: xAttr != noXattrInode,
	}, 0, nil
}

// deviceBody unifies block/char device inodes (types 4/5/11/12),
// decoding the packed major/minor rdev field.
type deviceBody struct {
	major, minor uint32
	xAttr        uint32
	hasXAttr     bool
}

func (d deviceBody) xattrIndex() (uint32, bool) { return d.xAttr, d.hasXAttr }

func parseBasicDeviceBody(b []byte) (deviceBody, error) {
	if len(b) < 8 {
		return deviceBody{}, errTruncated(0, 8, int64(len(b)))
	}
	dev := binary.LittleEndian.Uint32(b[4:8])
	return deviceBody{
		major: (dev & 0xfff00) >> 8,
		minor: (dev & 0xff) | ((dev >> 12) & 0xfff00),
	}, nil
}

func parseExtendedDeviceBody(b []byte) (deviceBody, error) {
	if len(b) < 12 {
		return deviceBody{}, errTruncated(0, 12, int64(len(b)))
	}
	d, err := parseBasicDeviceBody(b[:8])
	if err != nil {
		return deviceBody{}, err
	}
	d.xAttr = binary.LittleEndian.Uint32(b[8:12])
	d.hasXAttr = d.xAttr != noXattrInode
	return d, nil
}

// ipcBody unifies fifo/socket inodes (types 6/7/13/14), which carry no
// payload beyond an optional xattr index.
type ipcBody struct {
	xAttr    uint32
	hasXAttr bool
}

func (i ipcBody) xattrIndex() (uint32, bool) { return i.xAttr, i.hasXAttr }

func parseBasicIPCBody(b []byte) (ipcBody, error) {
	if len(b) < 4 {
		return ipcBody{}, errTruncated(0, 4, int64(len(b)))
	}
	return ipcBody{}, nil
}

func parseExtendedIPCBody(b []byte) (ipcBody, error) {
	if len(b) < 8 {
		return ipcBody{}, errTruncated(0, 8, int64(len(b)))
	}
	xAttr := binary.LittleEndian.Uint32(b[4:8])
	return ipcBody{xAttr: xAttr, hasXAttr: xAttr != noXattrInode}, nil
}

// inodeBodyMinSize is the minimum number of body bytes needed before
// any variable-length tail (block lists, directory indexes, symlink
// targets) can be sized.
func inodeBodyMinSize(t InodeType) int {
	switch t {
	case TypeBasicDirectory:
		return 16
	case TypeExtendedDirectory:
		return extendedDirHeaderSize
	case TypeBasicFile:
		return 16
	case TypeExtendedFile:
		return 40
	case TypeBasicSymlink, TypeExtendedSymlink:
		return 8
	case TypeBasicBlockDevice, TypeBasicCharDevice:
		return 8
	case TypeExtendedBlockDev, TypeExtendedCharDev:
		return 12
	case TypeBasicFifo, TypeBasicSocket:
		return 4
	case TypeExtendedFifo, TypeExtendedSocket:
		return 8
	default:
		return 0
	}
}

// parseInodeBody decodes the fixed portion of an inode body and
// reports how many additional bytes (extra) are needed for its
// variable-length tail, if any. Callers re-invoke after supplying
// those bytes.
func parseInodeBody(b []byte, blockSize int, t InodeType) (inodeBody, int, error) {
	switch t {
	case TypeBasicDirectory:
		body, err := parseBasicDirBody(b)
		return body, 0, err
	case TypeExtendedDirectory:
		return parseExtendedDirBody(b)
	case TypeBasicFile:
		return parseBasicFileBody(b, blockSize)
	case TypeExtendedFile:
		return parseExtendedFileBody(b, blockSize)
	case TypeBasicSymlink:
		return parseBasicSymlinkBody(b)
	case TypeExtendedSymlink:
		return parseExtendedSymlinkBody(b)
	case TypeBasicBlockDevice, TypeBasicCharDevice:
		body, err := parseBasicDeviceBody(b)
		return body, 0, err
	case TypeExtendedBlockDev, TypeExtendedCharDev:
		body, err := parseExtendedDeviceBody(b)
		return body, 0, err
	case TypeBasicFifo, TypeBasicSocket:
		body, err := parseBasicIPCBody(b)
		return body, 0, err
	case TypeExtendedFifo, TypeExtendedSocket:
		body, err := parseExtendedIPCBody(b)
		return body, 0, err
	default:
		return nil, 0, errInodeTypeUnknown(uint16(t))
	}
}

// Inode is a fully decoded inode: header plus its type-specific body.
type Inode struct {
	header inodeHeader
	body   inodeBody
}

func (n *Inode) Type() InodeType     { return n.header.kind }
func (n *Inode) Mode() os.FileMode   { return n.header.mode }
func (n *Inode) ModTime() time.Time  { return n.header.modTime }
func (n *Inode) Number() uint32      { return n.header.number }
