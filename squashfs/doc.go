// Package squashfs decodes SquashFS 4.0 filesystem images: the
// superblock, the id/xattr/fragment lookup tables, the chained inode
// and directory metadata tables, and the data-block/fragment layout
// that reassembles regular file contents. It never writes an image;
// extraction is exposed as a depth-first Walk over a Sink, not a
// mounted filesystem tree.
//
// references:
//
//	https://www.kernel.org/doc/Documentation/filesystems/squashfs.txt
//	https://dr-emann.github.io/squashfs/
//	https://elinux.org/images/3/32/Squashfs-elce.pdf
package squashfs
