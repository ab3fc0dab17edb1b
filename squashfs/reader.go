package squashfs

import (
	"encoding/binary"
	"io"
)

// byteReader does bounds-checked positioned little-endian reads over
// the image, used for the lookup-table indexes and the xattr header.
type byteReader struct {
	r        io.ReaderAt
	bytesUsed int64
}

func (b *byteReader) readExact(offset int64, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+int64(n) > b.bytesUsed {
		return nil, errTruncated(offset, int64(n), b.bytesUsed)
	}
	buf := make([]byte, n)
	read, err := b.r.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, newError(KindTruncated, "read failed", err)
	}
	if read != n {
		return nil, errTruncated(offset, int64(read), b.bytesUsed)
	}
	return buf, nil
}

func (b *byteReader) readU16LE(offset int64) (uint16, error) {
	buf, err := b.readExact(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (b *byteReader) readU32LE(offset int64) (uint32, error) {
	buf, err := b.readExact(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (b *byteReader) readU64LE(offset int64) (uint64, error) {
	buf, err := b.readExact(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
