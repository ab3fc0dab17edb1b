package squashfs

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/squashfs/go-squashfs/internal/codec"
)

const (
	metadataHeaderSize  = 2
	metadataMaxPayload  = 8192
	metadataSizeMask    = 0x7fff
	metadataRawFlag     = 0x8000
)

// parseMetaHeader decodes the 2-byte framing header that precedes every
// metadata block: bit 15 set means the payload follows uncompressed,
// the low 15 bits give its on-disk length.
func parseMetaHeader(h uint16) (size uint16, compressed bool) {
	return h & metadataSizeMask, h&metadataRawFlag == 0
}

// readMetaBlock reads one framed metadata block at an absolute image
// offset and returns its decompressed payload along with the total
// number of on-disk bytes it occupied (header + payload), so callers
// can advance to the next chained block.
func readMetaBlock(r io.ReaderAt, dec codec.Decompressor, location int64) (data []byte, consumed int64, err error) {
	hbuf := make([]byte, metadataHeaderSize)
	n, err := r.ReadAt(hbuf, location)
	if (err != nil && err != io.EOF) || n != metadataHeaderSize {
		return nil, 0, errMetaHeaderInvalid("short read of metadata header")
	}
	size, compressed := parseMetaHeader(binary.LittleEndian.Uint16(hbuf))

	payload := make([]byte, size)
	n, err = r.ReadAt(payload, location+metadataHeaderSize)
	if err != nil && err != io.EOF {
		return nil, 0, newError(KindTruncated, "metadata block payload", err)
	}
	if n != int(size) {
		return nil, 0, errTruncated(location+metadataHeaderSize, int64(n), int64(size))
	}

	if !compressed {
		return payload, metadataHeaderSize + int64(size), nil
	}
	if dec == nil {
		return nil, 0, errMetaHeaderInvalid("compressed metadata block but image uses compression id 0")
	}
	data, err = dec.Decompress(payload, metadataMaxPayload)
	if err != nil {
		return nil, 0, wrapDecodeErr(err)
	}
	return data, metadataHeaderSize + int64(size), nil
}

// wrapDecodeErr classifies a decompression failure: a codec that was
// never wired surfaces as UnsupportedCodec, anything else as a generic
// MetaHeaderInvalid.
func wrapDecodeErr(err error) error {
	var unsupported *codec.ErrUnsupported
	if errors.As(err, &unsupported) {
		return errUnsupportedCodec(CompressionID(unsupported.ID), err)
	}
	return newError(KindMetaHeaderInvalid, "decompress block", err)
}

// readMetadata reads size bytes of logical metadata starting byteOffset
// bytes into the block located at firstBlock+blockOffset, chaining into
// consecutive blocks as needed. This is the model used by tables with
// no separate index, namely the inode and directory tables.
//
// The cache, when non-nil, is consulted and populated so that
// repeated reads of the same on-disk offset (common while walking many
// directory entries whose inodes share a metadata block) decompress
// only once.
func readMetadata(r io.ReaderAt, dec codec.Decompressor, cache *blockCache, firstBlock int64, blockOffset uint32, byteOffset uint16, size int) ([]byte, error) {
	var out []byte
	offset := int64(blockOffset)

	block, consumed, err := readBlockCached(r, dec, cache, firstBlock+offset)
	if err != nil {
		return nil, err
	}
	if int(byteOffset) > len(block) {
		return nil, errDirectoryMalformed("byte offset past end of metadata block")
	}
	out = append(out, block[byteOffset:]...)

	for len(out) < size {
		offset += consumed
		block, consumed, err = readBlockCached(r, dec, cache, firstBlock+offset)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// blockCache maps an absolute on-disk block location to its decompressed
// payload and on-disk size, so a block shared by many inode or directory
// lookups is decompressed only once.
type blockCache struct {
	entries map[int64]cachedBlock
}

type cachedBlock struct {
	data     []byte
	consumed int64
}

func newBlockCache() *blockCache {
	return &blockCache{entries: make(map[int64]cachedBlock)}
}

func readBlockCached(r io.ReaderAt, dec codec.Decompressor, cache *blockCache, location int64) ([]byte, int64, error) {
	if cache != nil {
		if c, ok := cache.entries[location]; ok {
			return c.data, c.consumed, nil
		}
	}
	data, consumed, err := readMetaBlock(r, dec, location)
	if err != nil {
		return nil, 0, err
	}
	if cache != nil {
		cache.entries[location] = cachedBlock{data: data, consumed: consumed}
	}
	return data, consumed, nil
}
