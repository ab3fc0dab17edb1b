package codec

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

// lz4Codec handles squashfs compression id 5.
type lz4Codec struct{}

func (l *lz4Codec) Decompress(src []byte, maxOut int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	return readAllBounded(r, maxOut)
}
