package squashfs

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	magicNumber  uint32 = 0x73717368 // "hsqs" little-endian
	versionMajor uint16 = 4
	versionMinor uint16 = 0

	superblockSize = 96

	minBlockSize = 4 * 1024
	maxBlockSize = 1024 * 1024

	// noXattrTable is the sentinel xattr_id_table_start value meaning
	// the image carries no xattr store at all.
	noXattrTable uint64 = 0xffffffffffffffff
)

// CompressionID identifies one of the six codecs a SquashFS 4.0 image
// may select in its superblock.
type CompressionID uint16

const (
	CompressionGzip CompressionID = 1
	CompressionLzma CompressionID = 2
	CompressionLzo  CompressionID = 3
	CompressionXz   CompressionID = 4
	CompressionLz4  CompressionID = 5
	CompressionZstd CompressionID = 6
)

// InodeRef is the 64-bit logical locator used throughout the format:
// the upper 48 bits are the metadata block's offset from the start of
// its owning table, the lower 16 bits are the uncompressed byte offset
// within that block's decompressed payload.
type InodeRef uint64

func (r InodeRef) block() uint32  { return uint32(uint64(r) >> 16) }
func (r InodeRef) offset() uint16 { return uint16(uint64(r) & 0xffff) }

func newInodeRef(block uint32, offset uint16) InodeRef {
	return InodeRef(uint64(block)<<16 | uint64(offset))
}

type superblockFlags struct {
	uncompressedInodes    bool
	uncompressedData      bool
	uncompressedFragments bool
	noFragments           bool
	alwaysFragments       bool
	dedup                 bool
	exportable            bool
	uncompressedXattrs    bool
	noXattrs              bool
	compressorOptions     bool
	uncompressedIDs       bool
}

func parseSuperblockFlags(flags uint16) superblockFlags {
	return superblockFlags{
		uncompressedInodes:    flags&0x0001 != 0,
		uncompressedData:      flags&0x0002 != 0,
		uncompressedFragments: flags&0x0008 != 0,
		noFragments:           flags&0x0010 != 0,
		alwaysFragments:       flags&0x0020 != 0,
		dedup:                 flags&0x0040 != 0,
		exportable:            flags&0x0080 != 0,
		uncompressedXattrs:    flags&0x0100 != 0,
		noXattrs:              flags&0x0200 != 0,
		compressorOptions:     flags&0x0400 != 0,
		uncompressedIDs:       flags&0x0800 != 0,
	}
}

type superblock struct {
	inodeCount          uint32
	modTime             time.Time
	blockSize           uint32
	fragmentEntryCount  uint32
	compression         CompressionID
	idCount             uint16
	rootInodeRef        InodeRef
	bytesUsed           uint64
	idTableStart        uint64
	xattrIDTableStart   uint64
	inodeTableStart     uint64
	directoryTableStart uint64
	fragmentTableStart  uint64
	exportTableStart    uint64
	flags               superblockFlags
}

func (s *superblock) hasXattrTable() bool {
	return s.xattrIDTableStart != noXattrTable
}

// parseSuperblock decodes the 96-byte fixed header at offset 0 of a
// SquashFS 4.0 image. It is the only place version and magic are
// checked; everything downstream assumes a validated superblock.
func parseSuperblock(b []byte) (*superblock, error) {
	if len(b) != superblockSize {
		return nil, errSuperblockInvalid("wrong length")
	}

	magic := binary.LittleEndian.Uint32(b[0:4])
	if magic != magicNumber {
		return nil, errBadMagic(magic)
	}

	major := binary.LittleEndian.Uint16(b[28:30])
	minor := binary.LittleEndian.Uint16(b[30:32])
	if major != versionMajor || minor != versionMinor {
		return nil, errUnsupportedVersion(major, minor)
	}

	compression := binary.LittleEndian.Uint16(b[20:22])
	if compression < uint16(CompressionGzip) || compression > uint16(CompressionZstd) {
		return nil, errSuperblockInvalid("compression id out of range")
	}

	blockSize := binary.LittleEndian.Uint32(b[12:16])
	blockLog := binary.LittleEndian.Uint16(b[22:24])
	if blockSize < minBlockSize || blockSize > maxBlockSize || blockSize&(blockSize-1) != 0 {
		return nil, errSuperblockInvalid("block size out of range or not a power of two")
	}
	if expected := uint16(math.Log2(float64(blockSize))); expected != blockLog {
		return nil, errSuperblockInvalid("block size log mismatch")
	}

	return &superblock{
		inodeCount:          binary.LittleEndian.Uint32(b[4:8]),
		modTime:             time.Unix(int64(binary.LittleEndian.Uint32(b[8:12])), 0),
		blockSize:           blockSize,
		fragmentEntryCount:  binary.LittleEndian.Uint32(b[16:20]),
		compression:         CompressionID(compression),
		flags:               parseSuperblockFlags(binary.LittleEndian.Uint16(b[24:26])),
		idCount:             binary.LittleEndian.Uint16(b[26:28]),
		rootInodeRef:        InodeRef(binary.LittleEndian.Uint64(b[32:40])),
		bytesUsed:            binary.LittleEndian.Uint64(b[40:48]),
		idTableStart:        binary.LittleEndian.Uint64(b[48:56]),
		xattrIDTableStart:   binary.LittleEndian.Uint64(b[56:64]),
		inodeTableStart:     binary.LittleEndian.Uint64(b[64:72]),
		directoryTableStart: binary.LittleEndian.Uint64(b[72:80]),
		fragmentTableStart:  binary.LittleEndian.Uint64(b[80:88]),
		exportTableStart:    binary.LittleEndian.Uint64(b[88:96]),
	}, nil
}
