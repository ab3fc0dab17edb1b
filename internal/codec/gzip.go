package codec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// zlibCodec handles squashfs compression id 1. Despite the format's own
// name for it ("gzip"), the on-disk stream is raw zlib/DEFLATE, not
// gzip-framed.
type zlibCodec struct{}

func (z *zlibCodec) Decompress(src []byte, maxOut int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("codec: zlib reader: %w", err)
	}
	defer r.Close()
	return readAllBounded(r, maxOut)
}
