package codec

import (
	"bytes"
	"fmt"

	"github.com/ulikunitz/xz/lzma"
)

// AmbiguousHeader is returned alongside a successful decompress when the
// bare-stream probe failed and the 13-byte properties+size header probe
// had to be used instead. Callers may surface this as a non-fatal
// warning.
type AmbiguousHeader struct{}

func (*AmbiguousHeader) Error() string {
	return "codec: lzma stream required legacy properties+size header fallback"
}

// lzmaCodec handles squashfs compression id 2. squashfs-tools has shipped
// both a headerless LZMA1 stream and, historically, one with the classic
// 13-byte properties+uncompressed-size header; nothing in the superblock
// distinguishes them, so both are tried.
type lzmaCodec struct{}

func (l *lzmaCodec) Decompress(src []byte, maxOut int) ([]byte, error) {
	if out, err := l.decodeBareStream(src, maxOut); err == nil {
		return out, nil
	}
	out, err := l.decodeWithHeader(src, maxOut)
	if err != nil {
		return nil, fmt.Errorf("codec: lzma decompress: %w", err)
	}
	return out, &AmbiguousHeader{}
}

func (l *lzmaCodec) decodeBareStream(src []byte, maxOut int) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	return readAllBounded(r, maxOut)
}

func (l *lzmaCodec) decodeWithHeader(src []byte, maxOut int) ([]byte, error) {
	if len(src) < 13 {
		return nil, fmt.Errorf("stream too short for properties+size header")
	}
	r, err := lzma.NewReader(bytes.NewReader(src[13:]))
	if err != nil {
		return nil, err
	}
	return readAllBounded(r, maxOut)
}
