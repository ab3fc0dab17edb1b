package squashfs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/squashfs/go-squashfs/internal/codec"
)

const (
	fragmentEntrySize        = 16
	fragmentUncompressedFlag = 1 << 24
	fragmentNone             = 0xffffffff
)

// fragmentEntry describes one shared tail-fragment block: several
// files' trailing partial blocks are packed together and compressed
// as a unit to avoid wasting a full block on each one.
type fragmentEntry struct {
	start        uint64
	onDiskSize   uint32
	uncompressed bool
}

func parseFragmentEntry(b []byte) fragmentEntry {
	start := binary.LittleEndian.Uint64(b[0:8])
	size := binary.LittleEndian.Uint32(b[8:12])
	uncompressed := size&fragmentUncompressedFlag != 0
	size &^= fragmentUncompressedFlag
	return fragmentEntry{start: start, onDiskSize: size, uncompressed: uncompressed}
}

// fragmentTable resolves fragment entries by index via the indexed
// lookup shared with the id and xattr-id tables, and keeps a small
// configurable MRU cache of decompressed fragment blocks: a single
// block is often shared by several files extracted back to back.
type fragmentTable struct {
	table     *indexedTable
	r         io.ReaderAt
	dec       codec.Decompressor
	blockSize uint32

	cacheCap int
	cacheLRU []int
	cache    map[int][]byte
}

func readFragmentTable(r io.ReaderAt, dec codec.Decompressor, start int64, count int, cacheCap int, blockSize uint32) (*fragmentTable, error) {
	t, err := readIndexedTable(r, dec, start, count, fragmentEntrySize)
	if err != nil {
		return nil, err
	}
	if cacheCap < 1 {
		cacheCap = 1
	}
	return &fragmentTable{table: t, r: r, dec: dec, blockSize: blockSize, cacheCap: cacheCap, cache: make(map[int][]byte)}, nil
}

func (f *fragmentTable) entry(index uint32) (fragmentEntry, error) {
	b, err := f.table.entry(int(index))
	if err != nil {
		return fragmentEntry{}, err
	}
	return parseFragmentEntry(b), nil
}

// block returns the decompressed bytes of fragment block index,
// consulting and updating the MRU cache.
func (f *fragmentTable) block(index uint32) ([]byte, error) {
	if data, ok := f.cache[int(index)]; ok {
		f.touch(int(index))
		return data, nil
	}
	entry, err := f.entry(index)
	if err != nil {
		return nil, err
	}
	if entry.onDiskSize > f.blockSize {
		return nil, errBlockSizeOverflow(fmt.Sprintf("fragment block size %d exceeds block size %d", entry.onDiskSize, f.blockSize))
	}
	raw := make([]byte, entry.onDiskSize)
	n, err := f.r.ReadAt(raw, int64(entry.start))
	if err != nil && err != io.EOF {
		return nil, newError(KindTruncated, "fragment block read", err)
	}
	if n != len(raw) {
		return nil, errTruncated(int64(entry.start), int64(n), int64(len(raw)))
	}

	data := raw
	if !entry.uncompressed {
		if f.dec == nil {
			return nil, errUnsupportedCodec(0, nil)
		}
		data, err = f.dec.Decompress(raw, int(f.blockSize))
		if err != nil {
			return nil, wrapDecodeErr(err)
		}
	}
	f.put(int(index), data)
	return data, nil
}

func (f *fragmentTable) put(index int, data []byte) {
	if len(f.cacheLRU) >= f.cacheCap {
		evict := f.cacheLRU[0]
		f.cacheLRU = f.cacheLRU[1:]
		delete(f.cache, evict)
	}
	f.cache[index] = data
	f.cacheLRU = append(f.cacheLRU, index)
}

func (f *fragmentTable) touch(index int) {
	for i, v := range f.cacheLRU {
		if v == index {
			f.cacheLRU = append(f.cacheLRU[:i], f.cacheLRU[i+1:]...)
			break
		}
	}
	f.cacheLRU = append(f.cacheLRU, index)
}

// tail returns the slice [offset, offset+size) of the fragment block at
// index.
func (f *fragmentTable) tail(index uint32, offset uint32, size int64) ([]byte, error) {
	data, err := f.block(index)
	if err != nil {
		return nil, err
	}
	end := int64(offset) + size
	if end > int64(len(data)) {
		return nil, errFileSizeMismatch(end, int64(len(data)))
	}
	return data[offset:end], nil
}
