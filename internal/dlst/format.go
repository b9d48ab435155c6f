package dlst

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DLST containers are a chain of little-endian sections, each with a
// four-byte signature. The first 8 bytes of the file point at the file
// section, which points at the end of the structured region; the trailer
// sits just before that end (its size is the u32 in the last 4 bytes) and
// locates the entry directory.
const (
	magicFile      = "DNBE"
	magicTrailer   = "DNBF"
	magicDirectory = "DNBS"
	magicEntry     = "DNBA"

	fileSectionSize = 12  // magic + u64 end offset
	trailerSize     = 24  // magic + 12 reserved + u32 page count + u32 dir offset
	dirHeaderSize   = 12  // magic + u32 flags + u32 page count
	dirRecordSize   = 556 // fixed record: u64 size at +12, u64 offset at +20, UTF-16 name at +36
	entryHeaderSize = 36  // magic, u32 chunk size at +8, u32 data size at +24, u32 name length at +32
)

func u32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func u64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// decodeName decodes a NUL-padded UTF-16LE name field.
func decodeName(raw []byte) (string, error) {
	decoded, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(decoded), "\x00"), nil
}

// checkEntryName rejects names that could escape the extraction directory.
// Unsafe names abort parsing; they are never sanitized into something that
// would silently write elsewhere.
func checkEntryName(name string) error {
	if name == "" {
		return ErrUnsafeName
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return ErrUnsafeName
	}
	if len(name) >= 2 && name[1] == ':' {
		return ErrUnsafeName
	}
	for _, seg := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return ErrUnsafeName
		}
	}
	return nil
}
