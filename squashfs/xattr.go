package squashfs

import (
	"encoding/binary"
	"io"

	"github.com/squashfs/go-squashfs/internal/codec"
)

const (
	xattrIDEntrySize = 16
	xattrHeaderSize  = 16
	noXattrInode     = 0xffffffff
)

// xattrIndexEntry is one record of the xattr-id lookup table, pointing
// into the packed key/value store.
type xattrIndexEntry struct {
	pos   uint64
	count uint32
	size  uint32
}

func parseXattrIndexEntry(b []byte) xattrIndexEntry {
	return xattrIndexEntry{
		pos:   binary.LittleEndian.Uint64(b[0:8]),
		count: binary.LittleEndian.Uint32(b[8:12]),
		size:  binary.LittleEndian.Uint32(b[12:16]),
	}
}

// xattrStore is the two-level xattr structure: an indexed xattr-id
// table of {pos, count, size} records, each pointing into a flat
// key/value byte blob read as chained metadata blocks.
type xattrStore struct {
	ids  *indexedTable
	data []byte
}

// readXattrStore reads the xattr-id header at start (xattr data start
// offset + id count), the id-table index that immediately follows it,
// and the key/value data blob itself. Returns (nil, nil) if the image
// declares zero xattr entries.
func readXattrStore(r io.ReaderAt, dec codec.Decompressor, start int64) (*xattrStore, error) {
	br := &byteReader{r: r, bytesUsed: start + xattrHeaderSize}
	dataStart, err := br.readU64LE(start)
	if err != nil {
		return nil, err
	}
	count, err := br.readU32LE(start + 8)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	ids, err := readIndexedTable(r, dec, start+xattrHeaderSize, int(count), xattrIDEntrySize)
	if err != nil {
		return nil, err
	}

	// the last id-table entry's pos+size bounds the end of the kv blob;
	// the start is read from the header above.
	lastRaw, err := ids.entry(int(count) - 1)
	if err != nil {
		return nil, err
	}
	last := parseXattrIndexEntry(lastRaw)
	dataEnd := last.pos + uint64(last.size)
	_ = dataEnd // the chained metadata reads below stop once the blob covers dataEnd bytes

	var blob []byte
	for offset := int64(dataStart); uint64(len(blob)) < dataEnd; {
		block, consumed, err := readMetaBlock(r, dec, offset)
		if err != nil {
			return nil, err
		}
		blob = append(blob, block...)
		offset += consumed
	}

	return &xattrStore{ids: ids, data: blob}, nil
}

// lookup resolves the xattr set for the given xattr_id index, decoding
// the packed [type(2B)][nameLen(2B)][name][valLen(4B)][val] records
// starting at pos.
func (x *xattrStore) lookup(index uint32) (map[string]string, error) {
	raw, err := x.ids.entry(int(index))
	if err != nil {
		return nil, err
	}
	entry := parseXattrIndexEntry(raw)

	if entry.pos > uint64(len(x.data)) {
		return nil, errDirectoryMalformed("xattr kv position past end of store")
	}
	b := x.data[entry.pos:]
	result := make(map[string]string, entry.count)
	ptr := 0
	for i := uint32(0); i < entry.count; i++ {
		if len(b[ptr:]) < 4 {
			return nil, errDirectoryMalformed("truncated xattr kv header")
		}
		nameSize := int(binary.LittleEndian.Uint16(b[ptr+2 : ptr+4]))
		nameStart := ptr + 4
		if nameSize < 1 || len(b[nameStart:]) < nameSize {
			return nil, errDirectoryMalformed("truncated xattr name")
		}
		name := string(b[nameStart : nameStart+nameSize])

		valLenStart := nameStart + nameSize
		if len(b[valLenStart:]) < 4 {
			return nil, errDirectoryMalformed("truncated xattr value length")
		}
		valSize := int(binary.LittleEndian.Uint32(b[valLenStart : valLenStart+4]))
		valStart := valLenStart + 4
		if len(b[valStart:]) < valSize {
			return nil, errDirectoryMalformed("truncated xattr value")
		}
		result[name] = string(b[valStart : valStart+valSize])
		ptr = valStart + valSize
	}
	return result, nil
}
