package squashfs

import "fmt"

// Kind classifies a decoding error: the traversal driver switches on
// Kind (plus a lenient flag) to decide whether to abort or emit a
// warning and continue with the next sibling.
type Kind int

const (
	KindBadMagic Kind = iota
	KindUnsupportedVersion
	KindSuperblockInvalid
	KindUnsupportedCodec
	KindTruncated
	KindMetaHeaderInvalid
	KindBlockSizeOverflow
	KindInodeTypeUnknown
	KindDirectoryMalformed
	KindFileSizeMismatch
	KindXattrMissing
	KindSinkRefused
)

func (k Kind) String() string {
	switch k {
	case KindBadMagic:
		return "BadMagic"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindSuperblockInvalid:
		return "SuperblockInvalid"
	case KindUnsupportedCodec:
		return "UnsupportedCodec"
	case KindTruncated:
		return "Truncated"
	case KindMetaHeaderInvalid:
		return "MetaHeaderInvalid"
	case KindBlockSizeOverflow:
		return "BlockSizeOverflow"
	case KindInodeTypeUnknown:
		return "InodeTypeUnknown"
	case KindDirectoryMalformed:
		return "DirectoryMalformed"
	case KindFileSizeMismatch:
		return "FileSizeMismatch"
	case KindXattrMissing:
		return "XattrMissing"
	case KindSinkRefused:
		return "SinkRefused"
	default:
		return "Unknown"
	}
}

// Fatal reports whether this Kind aborts the whole extraction by default.
// XattrMissing and SinkRefused are always warnings; the rest are fatal
// unless the driver is running in lenient mode and the error is
// per-entry (InodeTypeUnknown, DirectoryMalformed, FileSizeMismatch).
func (k Kind) Fatal() bool {
	switch k {
	case KindXattrMissing, KindSinkRefused:
		return false
	default:
		return true
	}
}

// lenientEligible reports whether a lenient driver may downgrade this
// Kind to a warning and skip the offending sibling instead of aborting.
func (k Kind) lenientEligible() bool {
	switch k {
	case KindInodeTypeUnknown, KindDirectoryMalformed, KindFileSizeMismatch:
		return true
	default:
		return false
	}
}

// Error is the error type returned by every decoding operation in this
// package. Callers use errors.As to recover the Kind.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func errBadMagic(got uint32) error {
	return newError(KindBadMagic, fmt.Sprintf("magic %#08x", got), nil)
}

func errUnsupportedVersion(major, minor uint16) error {
	return newError(KindUnsupportedVersion, fmt.Sprintf("version %d.%d", major, minor), nil)
}

func errSuperblockInvalid(detail string) error {
	return newError(KindSuperblockInvalid, detail, nil)
}

func errUnsupportedCodec(id CompressionID, err error) error {
	return newError(KindUnsupportedCodec, fmt.Sprintf("compression id %d", id), err)
}

func errTruncated(offset, n, limit int64) error {
	return newError(KindTruncated, fmt.Sprintf("read %d bytes at %d exceeds bound %d", n, offset, limit), nil)
}

func errMetaHeaderInvalid(detail string) error {
	return newError(KindMetaHeaderInvalid, detail, nil)
}

func errBlockSizeOverflow(detail string) error {
	return newError(KindBlockSizeOverflow, detail, nil)
}

func errInodeTypeUnknown(t uint16) error {
	return newError(KindInodeTypeUnknown, fmt.Sprintf("type %d", t), nil)
}

func errDirectoryMalformed(detail string) error {
	return newError(KindDirectoryMalformed, detail, nil)
}

func errFileSizeMismatch(want, got int64) error {
	return newError(KindFileSizeMismatch, fmt.Sprintf("want %d got %d", want, got), nil)
}

func errXattrMissing(index uint32) error {
	return newError(KindXattrMissing, fmt.Sprintf("xattr index %d requested but image has no xattr table", index), nil)
}
