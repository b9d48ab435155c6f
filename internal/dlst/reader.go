// Package dlst reads DLST containers: encrypted archives distributing
// DRM-protected audio works. The format does not carry its own key; the
// caller supplies the AES-128 key and CBC IV out of band. A reader parses
// and validates the container structure up front, then hands out lazy
// per-entry plaintext streams.
package dlst

import (
	"fmt"
	"io"
	"os"
)

// Entry describes one file embedded in a container. Entries are immutable
// once parsed and appear in directory order.
type Entry struct {
	// Name is the entry's relative path inside the archive.
	Name string
	// Size is the entry's payload length in bytes. It is authoritative:
	// exactly this many plaintext bytes are produced for the entry.
	Size int64

	chunkSize int64
	offset    int64
}

// Reader provides access to the entries of a DLST container.
//
// The underlying source is only ever read through io.ReaderAt, so entries
// may be decrypted concurrently without a shared seek position.
type Reader struct {
	src     io.ReaderAt
	size    int64
	cipher  *CTCrypt
	iv      []byte
	entries []*Entry
	closer  io.Closer
}

// NewReader parses a container from src. key must be 16 bytes or nil; with
// a nil key entries can be listed but not opened. iv must be 16 bytes or
// nil (nil means the all-zero IV). Key and IV are validated before any
// source bytes are read.
func NewReader(src io.ReaderAt, size int64, key, iv []byte) (*Reader, error) {
	var ct *CTCrypt
	if key != nil {
		var err error
		if ct, err = NewCTCrypt(key); err != nil {
			return nil, err
		}
	}
	checked, err := checkIV(iv)
	if err != nil {
		return nil, err
	}

	r := &Reader{src: src, size: size, cipher: ct, iv: checked}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenReader opens the container file at path. The caller must call Close.
func OpenReader(path string, key, iv []byte) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat container: %w", err)
	}
	r, err := NewReader(f, info.Size(), key, iv)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Close releases the underlying file if the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Entries returns the container's entries in directory order.
func (r *Reader) Entries() []*Entry {
	return r.entries
}

// Entry returns the entry with the given name, or nil if not present.
func (r *Reader) Entry(name string) *Entry {
	for _, e := range r.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// readAt reads exactly n bytes at off, mapping short reads to ErrTruncated.
func (r *Reader) readAt(off int64, n int) ([]byte, error) {
	if off < 0 || off+int64(n) > r.size {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, source is %d", ErrTruncated, n, off, r.size)
	}
	buf := make([]byte, n)
	if _, err := r.src.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes at offset %d: %v", ErrTruncated, n, off, err)
	}
	return buf, nil
}

func (r *Reader) parse() error {
	head, err := r.readAt(0, 8)
	if err != nil {
		return err
	}

	sec, err := r.readAt(int64(u64(head)), fileSectionSize)
	if err != nil {
		return err
	}
	if string(sec[:4]) != magicFile {
		return fmt.Errorf("%w: file section %q", ErrBadMagic, sec[:4])
	}
	end := int64(u64(sec[4:]))
	if end < trailerSize || end > r.size {
		return fmt.Errorf("%w: declared end offset %d, source is %d", ErrTruncated, end, r.size)
	}

	sizeBuf, err := r.readAt(end-4, 4)
	if err != nil {
		return err
	}
	tsize := int64(u32(sizeBuf))
	if tsize < trailerSize || tsize > end {
		return fmt.Errorf("%w: trailer size %d", ErrCorruptIndex, tsize)
	}

	dirOffset, err := r.parseTrailer(end - tsize)
	if err != nil {
		return err
	}
	return r.parseDirectory(dirOffset)
}

func (r *Reader) parseTrailer(offset int64) (int64, error) {
	buf, err := r.readAt(offset, trailerSize)
	if err != nil {
		return 0, err
	}
	if string(buf[:4]) != magicTrailer {
		return 0, fmt.Errorf("%w: trailer %q", ErrBadMagic, buf[:4])
	}
	// buf[4:16] is reserved, buf[16:20] is an unused page count.
	return int64(u32(buf[20:])), nil
}

func (r *Reader) parseDirectory(offset int64) error {
	head, err := r.readAt(offset, dirHeaderSize)
	if err != nil {
		return err
	}
	if string(head[:4]) != magicDirectory {
		return fmt.Errorf("%w: directory %q", ErrBadMagic, head[:4])
	}
	// head[4:8] holds unused flags.
	count := int64(u32(head[8:]))
	if offset+dirHeaderSize+count*dirRecordSize > r.size {
		return fmt.Errorf("%w: directory claims %d entries", ErrCorruptIndex, count)
	}

	entries := make([]*Entry, 0, count)
	for i := int64(0); i < count; i++ {
		rec, err := r.readAt(offset+dirHeaderSize+i*dirRecordSize, dirRecordSize)
		if err != nil {
			return err
		}
		name, err := decodeName(rec[36:])
		if err != nil {
			return fmt.Errorf("%w: record %d name: %v", ErrCorruptIndex, i, err)
		}
		if err := checkEntryName(name); err != nil {
			return fmt.Errorf("%w: %q", err, name)
		}

		dataSize := int64(u64(rec[12:]))
		entry, err := r.parseEntryHeader(int64(u64(rec[20:])), dataSize)
		if err != nil {
			return fmt.Errorf("entry %q: %w", name, err)
		}
		entry.Name = name
		entries = append(entries, entry)
	}
	r.entries = entries
	return nil
}

// parseEntryHeader reads the per-entry header at offset and locates the
// ciphertext, cross-checking the size against the directory record.
func (r *Reader) parseEntryHeader(offset, dataSize int64) (*Entry, error) {
	buf, err := r.readAt(offset, entryHeaderSize)
	if err != nil {
		return nil, err
	}
	if string(buf[:4]) != magicEntry {
		return nil, fmt.Errorf("%w: entry %q", ErrBadMagic, buf[:4])
	}
	chunkSize := int64(u32(buf[8:]))
	if int64(u32(buf[24:])) != dataSize {
		return nil, fmt.Errorf("%w: entry size %d does not match directory size %d", ErrCorruptIndex, u32(buf[24:]), dataSize)
	}
	nameLen := int64(u32(buf[32:]))

	dataOffset := offset + entryHeaderSize + nameLen*2
	if dataOffset+dataSize > r.size {
		return nil, fmt.Errorf("%w: payload %d+%d exceeds source size %d", ErrCorruptIndex, dataOffset, dataSize, r.size)
	}
	return &Entry{Size: dataSize, chunkSize: chunkSize, offset: dataOffset}, nil
}

// Open returns a forward-only plaintext stream for the entry. Each call
// starts an independent decryption stream; streams from different entries
// share no chaining state and may be consumed concurrently.
func (r *Reader) Open(e *Entry) (io.Reader, error) {
	if r.cipher == nil {
		return nil, ErrNoKey
	}
	return newEntryReader(r, e), nil
}

// ReadEntry decrypts and returns the full contents of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	e := r.Entry(name)
	if e == nil {
		return nil, fmt.Errorf("no such entry: %q", name)
	}
	er, err := r.Open(e)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(er)
}
