package squashfs

import (
	"io"

	"github.com/squashfs/go-squashfs/internal/codec"
)

// indexedTable is the lookup shape shared by the id, xattr-id, and
// fragment tables: each is preceded by an index of 8-byte absolute
// block offsets, one per metadata block, letting entry k be resolved
// in O(1) via block_ix = (k*bpe)/8192, in_block = (k*bpe) mod 8192.
type indexedTable struct {
	r               io.ReaderAt
	dec             codec.Decompressor
	blockLocations  []int64
	entrySize       int
	count           int
	cache           map[int][]byte
}

// readIndexedTable reads the index itself (count entries of entrySize
// bytes, packed into ceil(count*entrySize/8192) metadata blocks) at
// indexStart, and returns a table able to resolve individual entries on
// demand.
func readIndexedTable(r io.ReaderAt, dec codec.Decompressor, indexStart int64, count, entrySize int) (*indexedTable, error) {
	t := &indexedTable{r: r, dec: dec, entrySize: entrySize, count: count, cache: make(map[int][]byte)}
	if count == 0 {
		return t, nil
	}
	totalBytes := count * entrySize
	numBlocks := (totalBytes + metadataMaxPayload - 1) / metadataMaxPayload

	br := &byteReader{r: r, bytesUsed: indexStart + int64(numBlocks)*8}
	locs := make([]int64, numBlocks)
	for i := 0; i < numBlocks; i++ {
		v, err := br.readU64LE(indexStart + int64(i)*8)
		if err != nil {
			return nil, err
		}
		locs[i] = int64(v)
	}
	t.blockLocations = locs
	return t, nil
}

// entry returns the raw bytes of entry k, straddling a metadata-block
// boundary if required.
func (t *indexedTable) entry(k int) ([]byte, error) {
	if k < 0 || k >= t.count {
		return nil, errSuperblockInvalid("table index out of range")
	}
	start := k * t.entrySize
	blockIx := start / metadataMaxPayload
	inBlock := start % metadataMaxPayload

	block, err := t.block(blockIx)
	if err != nil {
		return nil, err
	}
	if inBlock+t.entrySize <= len(block) {
		return block[inBlock : inBlock+t.entrySize], nil
	}

	// straddles into the next block.
	out := append([]byte{}, block[inBlock:]...)
	next, err := t.block(blockIx + 1)
	if err != nil {
		return nil, err
	}
	remaining := t.entrySize - len(out)
	if remaining > len(next) {
		return nil, errTruncated(0, int64(remaining), int64(len(next)))
	}
	out = append(out, next[:remaining]...)
	return out, nil
}

func (t *indexedTable) block(ix int) ([]byte, error) {
	if ix < 0 || ix >= len(t.blockLocations) {
		return nil, errTruncated(0, 0, 0)
	}
	if b, ok := t.cache[ix]; ok {
		return b, nil
	}
	data, _, err := readMetaBlock(t.r, t.dec, t.blockLocations[ix])
	if err != nil {
		return nil, err
	}
	t.cache[ix] = data
	return data, nil
}
