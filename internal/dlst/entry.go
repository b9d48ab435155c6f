package dlst

import (
	"fmt"
	"io"
)

// entryReader decrypts one entry's payload lazily, one chunk at a time.
// It is forward-only: there is no way to rewind within a stream, matching
// the single-pass extraction semantics of the format. The chunk IV chain
// starts from the reader's session IV and is private to this stream, so
// concurrent streams over different entries never share state.
type entryReader struct {
	src       *io.SectionReader
	cipher    *CTCrypt
	iv        []byte // IV chain position; advanced once per chunk
	chunkSize int64
	remaining int64
	buf       []byte // decrypted bytes not yet handed to the caller
}

func newEntryReader(r *Reader, e *Entry) *entryReader {
	chunk := e.chunkSize
	if chunk <= 0 {
		chunk = e.Size
	}
	return &entryReader{
		src:       io.NewSectionReader(r.src, e.offset, e.Size),
		cipher:    r.cipher,
		iv:        r.iv,
		chunkSize: chunk,
		remaining: e.Size,
	}
}

func (er *entryReader) Read(p []byte) (int, error) {
	if len(er.buf) == 0 {
		if er.remaining <= 0 {
			return 0, io.EOF
		}
		if err := er.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, er.buf)
	er.buf = er.buf[n:]
	return n, nil
}

// fill reads and decrypts the next chunk. The final chunk may be shorter
// than the chunk size; the cipher completes its tail block and the output
// is already cut to the chunk's byte length.
func (er *entryReader) fill() error {
	n := er.chunkSize
	if n > er.remaining {
		n = er.remaining
	}
	ciphertext := make([]byte, n)
	if _, err := io.ReadFull(er.src, ciphertext); err != nil {
		return fmt.Errorf("%w: reading entry payload: %v", ErrTruncated, err)
	}

	er.iv = er.cipher.nextIV(er.iv)
	plaintext, err := er.cipher.Decrypt(ciphertext, er.iv)
	if err != nil {
		return err
	}
	er.buf = plaintext
	er.remaining -= n
	return nil
}
