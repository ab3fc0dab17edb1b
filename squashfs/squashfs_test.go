package squashfs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"
	"time"
)

// imageBuilder assembles a minimal, valid SquashFS 4.0 image byte by
// byte: a handful of inodes sharing one metadata block each, one
// directory table block, and a one-entry id table. It exists only for
// these tests; nothing in the production code depends on it.
type imageBuilder struct {
	buf         bytes.Buffer
	blockSize   uint32
	compression CompressionID
}

func newImageBuilder() *imageBuilder {
	b := &imageBuilder{blockSize: minBlockSize, compression: CompressionGzip}
	b.buf.Write(make([]byte, superblockSize))
	return b
}

func (b *imageBuilder) offset() int64 { return int64(b.buf.Len()) }

func (b *imageBuilder) writeRawMetaBlock(payload []byte) int64 {
	loc := b.offset()
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(payload))|metadataRawFlag)
	b.buf.Write(hdr[:])
	b.buf.Write(payload)
	return loc
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib compress close: %v", err)
	}
	return out.Bytes()
}

func putInodeHeader(buf *bytes.Buffer, kind InodeType, mode uint16, number uint32) {
	var h [16]byte
	binary.LittleEndian.PutUint16(h[0:2], uint16(kind))
	binary.LittleEndian.PutUint16(h[2:4], mode)
	binary.LittleEndian.PutUint16(h[4:6], 0) // uid index
	binary.LittleEndian.PutUint16(h[6:8], 0) // gid index
	binary.LittleEndian.PutUint32(h[8:12], uint32(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()))
	binary.LittleEndian.PutUint32(h[12:16], number)
	buf.Write(h[:])
}

func putBasicDirBody(buf *bytes.Buffer, startBlock uint32, offset uint16, fileSize uint16, parent uint32) {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], startBlock)
	binary.LittleEndian.PutUint32(b[4:8], 2) // links
	binary.LittleEndian.PutUint16(b[8:10], fileSize)
	binary.LittleEndian.PutUint16(b[10:12], offset)
	binary.LittleEndian.PutUint32(b[12:16], parent)
	buf.Write(b[:])
}

func putDirHeader(buf *bytes.Buffer, count uint32, startBlock uint32, base uint32) {
	var h [12]byte
	binary.LittleEndian.PutUint32(h[0:4], count-1)
	binary.LittleEndian.PutUint32(h[4:8], startBlock)
	binary.LittleEndian.PutUint32(h[8:12], base)
	buf.Write(h[:])
}

func putDirEntry(buf *bytes.Buffer, offset uint16, delta int16, typeHint InodeType, name string) {
	var e [8]byte
	binary.LittleEndian.PutUint16(e[0:2], offset)
	binary.LittleEndian.PutUint16(e[2:4], uint16(delta))
	binary.LittleEndian.PutUint16(e[4:6], uint16(typeHint))
	binary.LittleEndian.PutUint16(e[6:8], uint16(len(name)-1))
	buf.Write(e[:])
	buf.WriteString(name)
}

func putBlockEntry(buf *bytes.Buffer, size uint32, uncompressed bool) {
	v := size
	if uncompressed {
		v |= blockUncompressedFlag
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// finish patches the superblock with all the offsets recorded while
// building and returns the complete image.
func (b *imageBuilder) finish(t *testing.T, inodeCount, idCount uint16, rootRef InodeRef,
	inodeTableStart, directoryTableStart, idTableStart, fragmentTableStart int64, fragmentCount uint32) []byte {
	t.Helper()
	img := b.buf.Bytes()

	sb := make([]byte, superblockSize)
	binary.LittleEndian.PutUint32(sb[0:4], magicNumber)
	binary.LittleEndian.PutUint32(sb[4:8], uint32(inodeCount))
	binary.LittleEndian.PutUint32(sb[8:12], uint32(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()))
	binary.LittleEndian.PutUint32(sb[12:16], b.blockSize)
	binary.LittleEndian.PutUint32(sb[16:20], fragmentCount)
	binary.LittleEndian.PutUint16(sb[20:22], uint16(b.compression))
	log2 := uint16(0)
	for v := b.blockSize; v > 1; v >>= 1 {
		log2++
	}
	binary.LittleEndian.PutUint16(sb[22:24], log2)
	binary.LittleEndian.PutUint16(sb[24:26], 0) // flags
	binary.LittleEndian.PutUint16(sb[26:28], idCount)
	binary.LittleEndian.PutUint16(sb[28:30], versionMajor)
	binary.LittleEndian.PutUint16(sb[30:32], versionMinor)
	binary.LittleEndian.PutUint64(sb[32:40], uint64(rootRef))
	binary.LittleEndian.PutUint64(sb[40:48], uint64(len(img)))
	binary.LittleEndian.PutUint64(sb[48:56], uint64(idTableStart))
	binary.LittleEndian.PutUint64(sb[56:64], noXattrTable)
	binary.LittleEndian.PutUint64(sb[64:72], uint64(inodeTableStart))
	binary.LittleEndian.PutUint64(sb[72:80], uint64(directoryTableStart))
	binary.LittleEndian.PutUint64(sb[80:88], uint64(fragmentTableStart))
	binary.LittleEndian.PutUint64(sb[88:96], 0xffffffffffffffff)
	copy(img[0:superblockSize], sb)
	return img
}

// recordingSink implements Sink, capturing the event order and file
// contents so tests can assert on depth-first ordering without a real
// filesystem.
type recordingSink struct {
	order    []string
	content  map[string][]byte
	current  string
	warnings []string
}

func (s *recordingSink) OnDir(path string, meta Meta) error {
	s.order = append(s.order, "dir:"+path)
	return nil
}

func (s *recordingSink) OnFileBegin(path string, meta Meta, size int64) error {
	s.order = append(s.order, "file-begin:"+path)
	s.current = path
	if s.content == nil {
		s.content = map[string][]byte{}
	}
	return nil
}

func (s *recordingSink) OnFileChunk(data []byte) error {
	s.content[s.current] = append(s.content[s.current], data...)
	return nil
}

func (s *recordingSink) OnFileEnd() error {
	s.order = append(s.order, "file-end:"+s.current)
	return nil
}

func (s *recordingSink) OnSymlink(path, target string, meta Meta) error {
	s.order = append(s.order, "symlink:"+path+"->"+target)
	return nil
}

func (s *recordingSink) OnSpecial(path string, kind SpecialKind, major, minor uint32, meta Meta) error {
	s.order = append(s.order, "special:"+path)
	return nil
}

func (s *recordingSink) OnWarning(kind Kind, detail string) {
	s.warnings = append(s.warnings, kind.String()+": "+detail)
}

// buildSingleFileImage constructs a minimal image: one root directory
// holding one file, with fileData as its content, zlib-compressed
// exactly like a real gzip-codec (id 1) image would store a data block
// that didn't qualify for the "stored uncompressed" bit.
func buildSingleFileImage(t *testing.T, fileData []byte) []byte {
	t.Helper()
	b := newImageBuilder()

	const rootNumber, fileNumber = 1, 2
	compressed := zlibCompress(t, fileData)

	// Lay out both inodes in one metadata block: the root directory
	// first (so its InodeRef is block 0, offset 0), then the file.
	var ordered bytes.Buffer
	putInodeHeader(&ordered, TypeBasicDirectory, 0o755, rootNumber)
	dirBodyPos := ordered.Len()
	putBasicDirBody(&ordered, 0, 0, 0, rootNumber) // fileSize patched below
	fileRefOffset := uint16(ordered.Len())
	putInodeHeader(&ordered, TypeBasicFile, 0o644, fileNumber)
	fileBodyPos := ordered.Len()
	var fb [16]byte
	binary.LittleEndian.PutUint32(fb[4:8], fragmentNone)
	binary.LittleEndian.PutUint32(fb[12:16], uint32(len(fileData)))
	ordered.Write(fb[:])
	putBlockEntry(&ordered, uint32(len(compressed)), false)

	// Directory table: one header + one entry naming the file, pointing
	// back at the file inode's position within the inode table block.
	var dirEntries bytes.Buffer
	putDirHeader(&dirEntries, 1, 0, fileNumber)
	putDirEntry(&dirEntries, fileRefOffset, 0, TypeBasicFile, "hello.txt")
	dirFileSize := uint16(dirEntries.Len() + dirFileSizeTrailer)

	orderedBytes := ordered.Bytes()
	binary.LittleEndian.PutUint16(orderedBytes[dirBodyPos+8:dirBodyPos+10], dirFileSize)

	inodeTableLoc := b.writeRawMetaBlock(orderedBytes)
	directoryTableStart := b.offset()
	b.writeRawMetaBlock(append(dirEntries.Bytes(), 0, 0, 0))

	idTableStart := b.offset()
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(idTableStart+8))
	b.buf.Write(idx[:])
	var idEntry [4]byte
	b.writeRawMetaBlock(idEntry[:]) // uid/gid 0

	fileBlockLoc := b.offset()
	b.buf.Write(compressed)

	// Patch the file inode's blocksStart field now that the data block's
	// final location is known.
	imgBytes := b.buf.Bytes()
	blocksStartAt := inodeTableLoc + metadataHeaderSize + int64(fileBodyPos)
	binary.LittleEndian.PutUint32(imgBytes[blocksStartAt:blocksStartAt+4], uint32(fileBlockLoc))

	return b.finish(t, 2, 1, newInodeRef(0, 0),
		inodeTableLoc, directoryTableStart, idTableStart, 0, 0)
}

func TestWalkSingleFile(t *testing.T) {
	img := buildSingleFileImage(t, []byte("hello"))
	r := bytes.NewReader(img)

	im, err := Open(r, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sink := &recordingSink{}
	if err := Walk(im, sink, WalkOptions{}); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	wantOrder := []string{"dir:/", "file-begin:/hello.txt", "file-end:/hello.txt"}
	if len(sink.order) != len(wantOrder) {
		t.Fatalf("event order = %v, want %v", sink.order, wantOrder)
	}
	for i, want := range wantOrder {
		if sink.order[i] != want {
			t.Errorf("event[%d] = %q, want %q", i, sink.order[i], want)
		}
	}
	if got := string(sink.content["/hello.txt"]); got != "hello" {
		t.Errorf("file content = %q, want %q", got, "hello")
	}
}

func TestBlockListLength(t *testing.T) {
	cases := []struct {
		fileSize    uint64
		blockSize   uint32
		hasFragment bool
		want        int
	}{
		{fileSize: 0, blockSize: 4096, hasFragment: false, want: 0},
		{fileSize: 5, blockSize: 4096, hasFragment: false, want: 1},
		{fileSize: 5, blockSize: 4096, hasFragment: true, want: 0},
		{fileSize: 4096, blockSize: 4096, hasFragment: false, want: 1},
		{fileSize: 4096, blockSize: 4096, hasFragment: true, want: 1},
		{fileSize: 4106, blockSize: 4096, hasFragment: true, want: 1},
		{fileSize: 4106, blockSize: 4096, hasFragment: false, want: 2},
	}
	for _, c := range cases {
		got := blockListLength(c.fileSize, c.blockSize, c.hasFragment)
		if got != c.want {
			t.Errorf("blockListLength(%d, %d, %v) = %d, want %d", c.fileSize, c.blockSize, c.hasFragment, got, c.want)
		}
	}
}

func TestParseDirectoryEntriesSignedDelta(t *testing.T) {
	var buf bytes.Buffer
	putDirHeader(&buf, 1, 7, 100)
	putDirEntry(&buf, 42, -3, TypeBasicFile, "a")
	entries, err := parseDirectoryEntries(buf.Bytes(), buf.Len())
	if err != nil {
		t.Fatalf("parseDirectoryEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].inodeNumber != 97 {
		t.Errorf("inodeNumber = %d, want 97 (100 + (-3))", entries[0].inodeNumber)
	}
	if entries[0].childRef != newInodeRef(7, 42) {
		t.Errorf("childRef = %v, want block=7 offset=42", entries[0].childRef)
	}
}

func TestParseSuperblockRejectsBadMagic(t *testing.T) {
	raw := make([]byte, superblockSize)
	if _, err := parseSuperblock(raw); err == nil {
		t.Fatal("expected error for zeroed superblock")
	}
}

func TestParseSuperblockRejectsCompressionOutOfRange(t *testing.T) {
	raw := make([]byte, superblockSize)
	binary.LittleEndian.PutUint32(raw[0:4], magicNumber)
	binary.LittleEndian.PutUint16(raw[20:22], 99)
	binary.LittleEndian.PutUint16(raw[28:30], versionMajor)
	binary.LittleEndian.PutUint16(raw[30:32], versionMinor)
	binary.LittleEndian.PutUint32(raw[12:16], minBlockSize)
	binary.LittleEndian.PutUint16(raw[22:24], 12)
	if _, err := parseSuperblock(raw); err == nil {
		t.Fatal("expected error for out-of-range compression id")
	}
}

func TestUnsupportedCodecFailsAtDecodeNotOpen(t *testing.T) {
	img := buildSingleFileImage(t, []byte("hello"))

	// Flip the compression id to lzo (3), which has no wired backend,
	// after the fact: Open must still succeed.
	patched := append([]byte{}, img...)
	binary.LittleEndian.PutUint16(patched[20:22], 3)
	im, err := Open(bytes.NewReader(patched), Options{})
	if err != nil {
		t.Fatalf("Open should succeed for an unwired-but-in-range codec: %v", err)
	}

	sink := &recordingSink{}
	err = Walk(im, sink, WalkOptions{})
	if err == nil {
		t.Fatal("expected Walk to fail once it needs to decompress the data block")
	}
	var se *Error
	if !asError(err, &se) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if se.Kind != KindUnsupportedCodec {
		t.Errorf("Kind = %v, want UnsupportedCodec", se.Kind)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

// buildFragmentSharingImage constructs an S2-shaped image: a root
// directory with two files, a.bin (one full block plus a 10-byte
// fragment tail) and b.bin (nothing but the same 10-byte fragment),
// both pointing at fragment index 0 offset 0.
func buildFragmentSharingImage(t *testing.T, blockData, fragData []byte) []byte {
	t.Helper()
	b := newImageBuilder()

	const rootNumber, fileANumber, fileBNumber = 1, 2, 3
	compressedBlock := zlibCompress(t, blockData)
	compressedFrag := zlibCompress(t, fragData)
	fileASize := uint32(len(blockData) + len(fragData))

	var ordered bytes.Buffer
	putInodeHeader(&ordered, TypeBasicDirectory, 0o755, rootNumber)
	dirBodyPos := ordered.Len()
	putBasicDirBody(&ordered, 0, 0, 0, rootNumber)

	fileARefOffset := uint16(ordered.Len())
	putInodeHeader(&ordered, TypeBasicFile, 0o644, fileANumber)
	fileABodyPos := ordered.Len()
	var fa [16]byte
	binary.LittleEndian.PutUint32(fa[12:16], fileASize)
	ordered.Write(fa[:])
	putBlockEntry(&ordered, uint32(len(compressedBlock)), false)

	fileBRefOffset := uint16(ordered.Len())
	putInodeHeader(&ordered, TypeBasicFile, 0o644, fileBNumber)
	var fbx [16]byte
	binary.LittleEndian.PutUint32(fbx[12:16], uint32(len(fragData)))
	ordered.Write(fbx[:])

	var dirEntries bytes.Buffer
	putDirHeader(&dirEntries, 2, 0, fileANumber)
	putDirEntry(&dirEntries, fileARefOffset, 0, TypeBasicFile, "a.bin")
	putDirEntry(&dirEntries, fileBRefOffset, int16(fileBNumber-fileANumber), TypeBasicFile, "b.bin")
	dirFileSize := uint16(dirEntries.Len() + dirFileSizeTrailer)

	orderedBytes := ordered.Bytes()
	binary.LittleEndian.PutUint16(orderedBytes[dirBodyPos+8:dirBodyPos+10], dirFileSize)

	inodeTableLoc := b.writeRawMetaBlock(orderedBytes)
	directoryTableStart := b.offset()
	b.writeRawMetaBlock(append(dirEntries.Bytes(), 0, 0, 0))

	idTableStart := b.offset()
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(idTableStart+8))
	b.buf.Write(idx[:])
	var idEntry [4]byte
	b.writeRawMetaBlock(idEntry[:])

	fragDataLoc := b.offset()
	b.buf.Write(compressedFrag)

	fragTableStart := b.offset()
	var fidx [8]byte
	binary.LittleEndian.PutUint64(fidx[:], uint64(fragTableStart+8))
	b.buf.Write(fidx[:])
	var fe [16]byte
	binary.LittleEndian.PutUint64(fe[0:8], uint64(fragDataLoc))
	binary.LittleEndian.PutUint32(fe[8:12], uint32(len(compressedFrag)))
	b.writeRawMetaBlock(fe[:])

	fileABlockLoc := b.offset()
	b.buf.Write(compressedBlock)

	imgBytes := b.buf.Bytes()
	blocksStartAt := inodeTableLoc + metadataHeaderSize + int64(fileABodyPos)
	binary.LittleEndian.PutUint32(imgBytes[blocksStartAt:blocksStartAt+4], uint32(fileABlockLoc))

	return b.finish(t, 3, 1, newInodeRef(0, 0),
		inodeTableLoc, directoryTableStart, idTableStart, fragTableStart, 1)
}

func TestWalkFragmentSharing(t *testing.T) {
	blockData := bytes.Repeat([]byte{'A'}, minBlockSize)
	fragData := []byte("0123456789")
	img := buildFragmentSharingImage(t, blockData, fragData)

	im, err := Open(bytes.NewReader(img), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink := &recordingSink{}
	if err := Walk(im, sink, WalkOptions{}); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	a := sink.content["/a.bin"]
	bee := sink.content["/b.bin"]
	if len(a) != len(blockData)+len(fragData) {
		t.Fatalf("a.bin size = %d, want %d", len(a), len(blockData)+len(fragData))
	}
	if tail := a[len(blockData):]; string(tail) != string(fragData) {
		t.Errorf("a.bin tail = %q, want %q", tail, fragData)
	}
	if string(bee) != string(fragData) {
		t.Errorf("b.bin = %q, want %q", bee, fragData)
	}
}

// buildSparseFileImage constructs an image: a root directory with one
// file of three full blocks where the middle block is sparse (a zero
// block-sizes entry), no fragment involved.
func buildSparseFileImage(t *testing.T, first, last []byte) []byte {
	t.Helper()
	b := newImageBuilder()
	const rootNumber, fileNumber = 1, 2
	compressedFirst := zlibCompress(t, first)
	compressedLast := zlibCompress(t, last)
	fileSize := uint32(len(first) + int(b.blockSize) + len(last))

	var ordered bytes.Buffer
	putInodeHeader(&ordered, TypeBasicDirectory, 0o755, rootNumber)
	dirBodyPos := ordered.Len()
	putBasicDirBody(&ordered, 0, 0, 0, rootNumber)

	fileRefOffset := uint16(ordered.Len())
	putInodeHeader(&ordered, TypeBasicFile, 0o644, fileNumber)
	fileBodyPos := ordered.Len()
	var fb [16]byte
	binary.LittleEndian.PutUint32(fb[4:8], fragmentNone)
	binary.LittleEndian.PutUint32(fb[12:16], fileSize)
	ordered.Write(fb[:])
	putBlockEntry(&ordered, uint32(len(compressedFirst)), false)
	putBlockEntry(&ordered, 0, false) // sparse
	putBlockEntry(&ordered, uint32(len(compressedLast)), false)

	var dirEntries bytes.Buffer
	putDirHeader(&dirEntries, 1, 0, fileNumber)
	putDirEntry(&dirEntries, fileRefOffset, 0, TypeBasicFile, "sparse.bin")
	dirFileSize := uint16(dirEntries.Len() + dirFileSizeTrailer)

	orderedBytes := ordered.Bytes()
	binary.LittleEndian.PutUint16(orderedBytes[dirBodyPos+8:dirBodyPos+10], dirFileSize)

	inodeTableLoc := b.writeRawMetaBlock(orderedBytes)
	directoryTableStart := b.offset()
	b.writeRawMetaBlock(append(dirEntries.Bytes(), 0, 0, 0))

	idTableStart := b.offset()
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(idTableStart+8))
	b.buf.Write(idx[:])
	var idEntry [4]byte
	b.writeRawMetaBlock(idEntry[:])

	firstBlockLoc := b.offset()
	b.buf.Write(compressedFirst)
	// the sparse block occupies no on-disk space at all.
	lastBlockLoc := b.offset()
	b.buf.Write(compressedLast)

	imgBytes := b.buf.Bytes()
	blocksStartAt := inodeTableLoc + metadataHeaderSize + int64(fileBodyPos)
	binary.LittleEndian.PutUint32(imgBytes[blocksStartAt:blocksStartAt+4], uint32(firstBlockLoc))
	_ = lastBlockLoc // the sparse-skipping reader locates block 2 by summing block.size, not a stored pointer

	return b.finish(t, 2, 1, newInodeRef(0, 0),
		inodeTableLoc, directoryTableStart, idTableStart, 0, 0)
}

func TestWalkSparseFile(t *testing.T) {
	first := bytes.Repeat([]byte{'A'}, minBlockSize)
	last := bytes.Repeat([]byte{'B'}, minBlockSize)
	img := buildSparseFileImage(t, first, last)

	im, err := Open(bytes.NewReader(img), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink := &recordingSink{}
	if err := Walk(im, sink, WalkOptions{}); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	got := sink.content["/sparse.bin"]
	wantSize := len(first) + minBlockSize + len(last)
	if len(got) != wantSize {
		t.Fatalf("sparse.bin size = %d, want %d", len(got), wantSize)
	}
	middle := got[len(first) : len(first)+minBlockSize]
	for i, v := range middle {
		if v != 0 {
			t.Fatalf("middle block byte %d = %d, want 0", i, v)
		}
	}
	if string(got[:len(first)]) != string(first) {
		t.Errorf("first block mismatch")
	}
	if string(got[len(first)+minBlockSize:]) != string(last) {
		t.Errorf("last block mismatch")
	}
}

// buildSymlinkImage constructs an S4-shaped image: a root directory
// with a single symlink entry pointing at target.
func buildSymlinkImage(t *testing.T, target string) []byte {
	t.Helper()
	b := newImageBuilder()
	const rootNumber, linkNumber = 1, 2

	var ordered bytes.Buffer
	putInodeHeader(&ordered, TypeBasicDirectory, 0o755, rootNumber)
	dirBodyPos := ordered.Len()
	putBasicDirBody(&ordered, 0, 0, 0, rootNumber)

	linkRefOffset := uint16(ordered.Len())
	putInodeHeader(&ordered, TypeBasicSymlink, 0o777, linkNumber)
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint32(sizeBuf[4:8], uint32(len(target)))
	ordered.Write(sizeBuf[:])
	ordered.WriteString(target)

	var dirEntries bytes.Buffer
	putDirHeader(&dirEntries, 1, 0, linkNumber)
	putDirEntry(&dirEntries, linkRefOffset, 0, TypeBasicSymlink, "link")
	dirFileSize := uint16(dirEntries.Len() + dirFileSizeTrailer)

	orderedBytes := ordered.Bytes()
	binary.LittleEndian.PutUint16(orderedBytes[dirBodyPos+8:dirBodyPos+10], dirFileSize)

	inodeTableLoc := b.writeRawMetaBlock(orderedBytes)
	directoryTableStart := b.offset()
	b.writeRawMetaBlock(append(dirEntries.Bytes(), 0, 0, 0))

	idTableStart := b.offset()
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(idTableStart+8))
	b.buf.Write(idx[:])
	var idEntry [4]byte
	b.writeRawMetaBlock(idEntry[:])

	return b.finish(t, 2, 1, newInodeRef(0, 0),
		inodeTableLoc, directoryTableStart, idTableStart, 0, 0)
}

func TestWalkSymlink(t *testing.T) {
	const target = "../etc/passwd"
	img := buildSymlinkImage(t, target)

	im, err := Open(bytes.NewReader(img), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink := &recordingSink{}
	if err := Walk(im, sink, WalkOptions{}); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := "symlink:/link->" + target
	if len(sink.order) != 2 || sink.order[1] != want {
		t.Fatalf("event order = %v, want [dir:/, %q]", sink.order, want)
	}
}

// deepTreeDepth is how many nested directory levels buildDeepTreeImage
// produces below the root.
const deepTreeDepth = 7

type deepTreeNode struct {
	dirBodyPos    int
	selfOffset    uint16
	number        uint32
	fileRefOffset uint16
	fileNumber    uint32
	childOffset   uint16
	childNumber   uint32
	hasSub        bool
}

// buildDeepTreeImage constructs an S5-shaped image: deepTreeDepth
// nested directories, each holding one empty file "f.txt" and (except
// the deepest) one subdirectory "sub", entries ordered subdir-before-
// file so a correct depth-first walker must fully descend before it
// ever emits a shallower level's file.
func buildDeepTreeImage(t *testing.T) []byte {
	t.Helper()
	b := newImageBuilder()

	var ordered bytes.Buffer
	var nodes []deepTreeNode
	nextNum := uint32(1)

	var build func(depth int) deepTreeNode
	build = func(depth int) deepTreeNode {
		selfOffset := uint16(ordered.Len())
		number := nextNum
		nextNum++
		putInodeHeader(&ordered, TypeBasicDirectory, 0o755, number)
		dirBodyPos := ordered.Len()
		putBasicDirBody(&ordered, 0, 0, 0, number)

		fileRefOffset := uint16(ordered.Len())
		fileNumber := nextNum
		nextNum++
		putInodeHeader(&ordered, TypeBasicFile, 0o644, fileNumber)
		var fb [16]byte
		binary.LittleEndian.PutUint32(fb[4:8], fragmentNone)
		ordered.Write(fb[:])

		n := deepTreeNode{
			dirBodyPos: dirBodyPos, selfOffset: selfOffset, number: number,
			fileRefOffset: fileRefOffset, fileNumber: fileNumber,
		}
		if depth < deepTreeDepth {
			child := build(depth + 1)
			n.hasSub = true
			n.childOffset = child.selfOffset
			n.childNumber = child.number
		}
		nodes = append(nodes, n)
		return n
	}
	root := build(0)

	var dirTable bytes.Buffer
	orderedBytes := ordered.Bytes()
	for _, n := range nodes {
		var de bytes.Buffer
		base := n.fileNumber
		count := uint32(1)
		if n.hasSub {
			base = n.childNumber
			count = 2
		}
		putDirHeader(&de, count, 0, base)
		if n.hasSub {
			putDirEntry(&de, n.childOffset, 0, TypeBasicDirectory, "sub")
			putDirEntry(&de, n.fileRefOffset, int16(int32(n.fileNumber)-int32(base)), TypeBasicFile, "f.txt")
		} else {
			putDirEntry(&de, n.fileRefOffset, 0, TypeBasicFile, "f.txt")
		}

		startOffset := uint16(dirTable.Len())
		dirTable.Write(de.Bytes())
		dirFileSize := uint16(de.Len() + dirFileSizeTrailer)
		binary.LittleEndian.PutUint16(orderedBytes[n.dirBodyPos+8:n.dirBodyPos+10], dirFileSize)
		binary.LittleEndian.PutUint16(orderedBytes[n.dirBodyPos+10:n.dirBodyPos+12], startOffset)
	}
	dirTable.Write([]byte{0, 0, 0})

	inodeTableLoc := b.writeRawMetaBlock(orderedBytes)
	directoryTableStart := b.offset()
	b.writeRawMetaBlock(dirTable.Bytes())

	idTableStart := b.offset()
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(idTableStart+8))
	b.buf.Write(idx[:])
	var idEntry [4]byte
	b.writeRawMetaBlock(idEntry[:])

	return b.finish(t, uint16(len(nodes)*2), 1, newInodeRef(0, root.selfOffset),
		inodeTableLoc, directoryTableStart, idTableStart, 0, 0)
}

func TestWalkDeepTree(t *testing.T) {
	img := buildDeepTreeImage(t)

	im, err := Open(bytes.NewReader(img), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink := &recordingSink{}
	if err := Walk(im, sink, WalkOptions{}); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	wantDepth := "/" + joinRepeated("sub/", deepTreeDepth)
	found := false
	for _, e := range sink.order {
		if e == "dir:"+trimTrailingSlash(wantDepth) {
			found = true
		}
	}
	if !found {
		t.Fatalf("no dir event at max depth %q, order = %v", wantDepth, sink.order)
	}

	// Pre-order depth-first: the root's own f.txt must appear only after
	// every descendant directory's events, i.e. last in the stream.
	if last := sink.order[len(sink.order)-1]; last != "file-end:/f.txt" {
		t.Errorf("last event = %q, want file-end:/f.txt (root's file emitted after full descent)", last)
	}
}

func joinRepeated(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func trimTrailingSlash(s string) string {
	if len(s) > 1 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}
