package codec

import (
	"bytes"
	"fmt"

	"github.com/ulikunitz/xz"
)

// xzCodec handles squashfs compression id 4.
type xzCodec struct{}

func (x *xzCodec) Decompress(src []byte, maxOut int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("codec: xz reader: %w", err)
	}
	return readAllBounded(r, maxOut)
}
