package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec handles squashfs compression id 6, using the same
// klauspost/compress module already pulled in for id 1.
type zstdCodec struct{}

func (z *zstdCodec) Decompress(src []byte, maxOut int) ([]byte, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd reader: %w", err)
	}
	defer d.Close()
	var limit uint64
	if maxOut > 0 {
		limit = uint64(maxOut)
	}
	out, err := d.DecodeAll(src, make([]byte, 0, limit))
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decompress: %w", err)
	}
	if maxOut > 0 && len(out) > maxOut {
		return nil, fmt.Errorf("codec: decompressed output exceeds bound %d", maxOut)
	}
	return out, nil
}
