package squashfs

import (
	"encoding/binary"
	"io"

	"github.com/squashfs/go-squashfs/internal/codec"
)

const idEntrySize = 4

// idTable is the flat array of 32-bit uids/gids addressed by the 16-bit
// id indices carried in every inode header.
type idTable struct {
	table *indexedTable
}

func readIDTable(r io.ReaderAt, dec codec.Decompressor, start int64, count int) (*idTable, error) {
	t, err := readIndexedTable(r, dec, start, count, idEntrySize)
	if err != nil {
		return nil, err
	}
	return &idTable{table: t}, nil
}

func (t *idTable) lookup(index uint16) (uint32, error) {
	b, err := t.table.entry(int(index))
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
