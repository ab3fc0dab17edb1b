package squashfs

import (
	"io"

	"github.com/squashfs/go-squashfs/internal/codec"
)

// DefaultFragmentCacheSize bounds the default most-recently-used
// fragment block cache. A single entry is enough to handle repeated
// access to one shared block, but a larger bounded LRU amortizes
// extraction runs that interleave several fragment-tailed files.
const DefaultFragmentCacheSize = 8

// Image is an opened, validated SquashFS 4.0 byte stream and the
// auxiliary tables needed to resolve any inode, directory, or file
// reachable from its root. It holds no read cursor and is therefore
// usable for one traversal at a time but safe to reopen repeatedly.
type Image struct {
	r  io.ReaderAt
	sb *superblock

	dec codec.Decompressor

	ids        *idTable
	xattrs     *xattrStore
	fragments  *fragmentTable
	blockCache *blockCache
}

// Options configures how an Image resolves optional tables.
type Options struct {
	// FragmentCacheSize overrides DefaultFragmentCacheSize. Zero means
	// use the default.
	FragmentCacheSize int
}

// Open parses the superblock at offset 0 of r, reads the block indexes
// of the id and fragment tables (their entries are decoded on demand),
// and reads the whole xattr store if the image has one. It does not
// touch the inode or
// directory tables; those are read lazily, on demand, by the
// traversal driver.
func Open(r io.ReaderAt, opts Options) (*Image, error) {
	raw := make([]byte, superblockSize)
	n, err := r.ReadAt(raw, 0)
	if err != nil && err != io.EOF {
		return nil, newError(KindTruncated, "superblock read", err)
	}
	if n != superblockSize {
		return nil, errTruncated(0, int64(n), superblockSize)
	}

	sb, err := parseSuperblock(raw)
	if err != nil {
		return nil, err
	}

	// codec.New never fails Open itself: a missing backend must fail at
	// the first actual decode, not here; parseSuperblock already
	// rejected ids outside 1..6.
	var dec codec.Decompressor
	if sb.compression != 0 {
		dec, _ = codec.New(codec.ID(sb.compression))
	}

	img := &Image{r: r, sb: sb, dec: dec, blockCache: newBlockCache()}

	ids, err := readIDTable(r, dec, int64(sb.idTableStart), int(sb.idCount))
	if err != nil {
		return nil, err
	}
	img.ids = ids

	if sb.hasXattrTable() {
		xattrs, err := readXattrStore(r, dec, int64(sb.xattrIDTableStart))
		if err != nil {
			return nil, err
		}
		img.xattrs = xattrs
	}

	cacheCap := opts.FragmentCacheSize
	if cacheCap == 0 {
		cacheCap = DefaultFragmentCacheSize
	}
	fragments, err := readFragmentTable(r, dec, int64(sb.fragmentTableStart), int(sb.fragmentEntryCount), cacheCap, sb.blockSize)
	if err != nil {
		return nil, err
	}
	img.fragments = fragments

	return img, nil
}

// RootRef returns the root directory's inode reference.
func (img *Image) RootRef() InodeRef { return img.sb.rootInodeRef }

// resolveXattrs returns the xattr set for an inode body, or nil if the
// body carries no xattr index. A declared index with no backing store
// is reported as a non-fatal XattrMissing warning to the caller.
func (img *Image) resolveXattrs(body inodeBody) (map[string]string, error) {
	idx, has := body.xattrIndex()
	if !has {
		return nil, nil
	}
	if img.xattrs == nil {
		return nil, errXattrMissing(idx)
	}
	return img.xattrs.lookup(idx)
}

func (img *Image) resolveOwner(header inodeHeader) (uid, gid uint32, err error) {
	uid, err = img.ids.lookup(header.uidIdx)
	if err != nil {
		return 0, 0, err
	}
	gid, err = img.ids.lookup(header.gidIdx)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

// inode resolves an inode reference to its decoded header and body.
// Inode-table reads chain from inodeTableStart with no separate index;
// the Image's blockCache memoizes decompressed blocks across repeated
// resolutions.
func (img *Image) inode(ref InodeRef) (*Inode, error) {
	minSize := inodeHeaderSize
	buf, err := readMetadata(img.r, img.dec, img.blockCache, int64(img.sb.inodeTableStart), ref.block(), ref.offset(), minSize)
	if err != nil {
		return nil, err
	}
	header, err := parseInodeHeader(buf)
	if err != nil {
		return nil, err
	}

	bodyMin := inodeBodyMinSize(header.kind)
	total := inodeHeaderSize + bodyMin
	if len(buf) < total {
		buf, err = readMetadata(img.r, img.dec, img.blockCache, int64(img.sb.inodeTableStart), ref.block(), ref.offset(), total)
		if err != nil {
			return nil, err
		}
	}

	body, extra, err := parseInodeBody(buf[inodeHeaderSize:], int(img.sb.blockSize), header.kind)
	if err != nil {
		return nil, err
	}
	if extra > 0 {
		total += extra
		buf, err = readMetadata(img.r, img.dec, img.blockCache, int64(img.sb.inodeTableStart), ref.block(), ref.offset(), total)
		if err != nil {
			return nil, err
		}
		body, _, err = parseInodeBody(buf[inodeHeaderSize:], int(img.sb.blockSize), header.kind)
		if err != nil {
			return nil, err
		}
	}

	return &Inode{header: header, body: body}, nil
}

// directoryEntries resolves the full, ordered child list of a
// directory inode, applying the off-by-three trailer adjustment on the
// way in.
func (img *Image) directoryEntries(body dirBody) ([]dirEntry, error) {
	encodedSize := int(body.fileSize) - dirFileSizeTrailer
	if encodedSize < 0 {
		return nil, errDirectoryMalformed("file_size smaller than trailer")
	}
	if encodedSize == 0 {
		return nil, nil
	}
	data, err := readMetadata(img.r, img.dec, img.blockCache, int64(img.sb.directoryTableStart), body.startBlock, body.offset, encodedSize)
	if err != nil {
		return nil, err
	}
	return parseDirectoryEntries(data, encodedSize)
}
