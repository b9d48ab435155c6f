package dlst

import "errors"

// Format errors. Any of these means the container structure cannot be
// trusted and extraction aborts; retrying the same bytes cannot succeed.
var (
	// ErrBadMagic indicates a section signature did not match the format.
	ErrBadMagic = errors.New("dlst: bad section magic")

	// ErrTruncated indicates the source ended before a declared structure.
	ErrTruncated = errors.New("dlst: truncated container")

	// ErrCorruptIndex indicates the directory describes byte ranges or
	// sizes that are inconsistent with the source.
	ErrCorruptIndex = errors.New("dlst: corrupt index")

	// ErrUnsafeName indicates an entry name that would escape the
	// extraction directory. Such names are rejected, never sanitized.
	ErrUnsafeName = errors.New("dlst: unsafe entry name")
)

// Crypto errors. These are caller configuration problems and are raised
// before any source bytes are read.
var (
	// ErrKeySize indicates the supplied key is not exactly 16 bytes.
	ErrKeySize = errors.New("dlst: key must be 16 bytes")

	// ErrIVSize indicates the supplied IV is not exactly 16 bytes.
	ErrIVSize = errors.New("dlst: iv must be 16 bytes")

	// ErrNoKey indicates an attempt to open an entry on a reader that was
	// created without a key. Listing works without one; decryption does not.
	ErrNoKey = errors.New("dlst: cannot decrypt without key")
)
