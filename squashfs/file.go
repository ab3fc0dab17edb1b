package squashfs

import (
	"fmt"
	"io"
)

// streamFile walks a file's block-sizes array, decoding (or
// zero-filling, for sparse entries) each full block, then appends the
// tail fragment if the inode uses one. emit is called once per yielded
// chunk; streamFile never buffers the whole file in memory.
func (img *Image) streamFile(f fileBody, emit func([]byte) error) error {
	var sent int64
	location := int64(f.blocksStart)

	for _, block := range f.blocks {
		if block.sparse() {
			if err := emit(make([]byte, img.sb.blockSize)); err != nil {
				return err
			}
			sent += int64(img.sb.blockSize)
			continue
		}

		if block.size > img.sb.blockSize {
			return errBlockSizeOverflow(fmt.Sprintf("data block size %d exceeds block size %d", block.size, img.sb.blockSize))
		}

		raw := make([]byte, block.size)
		n, err := img.r.ReadAt(raw, location)
		if err != nil && err != io.EOF {
			return newError(KindTruncated, "data block read", err)
		}
		if n != len(raw) {
			return errTruncated(location, int64(n), int64(len(raw)))
		}

		data := raw
		if !block.uncompressed {
			if img.dec == nil {
				return errUnsupportedCodec(img.sb.compression, nil)
			}
			data, err = img.dec.Decompress(raw, int(img.sb.blockSize))
			if err != nil {
				return wrapDecodeErr(err)
			}
		}
		if err := emit(data); err != nil {
			return err
		}
		sent += int64(len(data))
		location += int64(block.size)
	}

	if f.hasFragment() {
		tailSize := int64(f.fileSize) - sent
		if tailSize > 0 {
			data, err := img.fragments.tail(f.fragmentIndex, f.fragmentOffset, tailSize)
			if err != nil {
				return err
			}
			if err := emit(data); err != nil {
				return err
			}
			sent += int64(len(data))
		}
	}

	if sent != int64(f.fileSize) {
		return errFileSizeMismatch(int64(f.fileSize), sent)
	}
	return nil
}
