package dlst

import (
	"encoding/binary"
	"testing"
)

// fixtureEntry is one file to embed in a synthetic container.
type fixtureEntry struct {
	name string
	data []byte
}

// fixture is a built container plus the offsets tests need for targeted
// corruption and ciphertext comparison.
type fixture struct {
	bytes []byte

	fileSectionOff int64
	dirOff         int64
	// per entry, in order
	headerOffs []int64
	dataOffs   []int64
}

// buildContainer writes a container in the on-disk layout: leading u64
// pointer, DNBE file section, entry blocks, DNBS directory, DNBF trailer.
// Payloads are encrypted chunk by chunk with the derived-IV chain, exactly
// as a real packer would.
func buildContainer(t *testing.T, key, iv []byte, chunkSize uint32, entries []fixtureEntry) *fixture {
	t.Helper()

	c, err := NewCTCrypt(key)
	if err != nil {
		t.Fatalf("NewCTCrypt() error = %v", err)
	}

	fx := &fixture{fileSectionOff: 8}
	var out []byte
	put32 := func(v uint32) { out = binary.LittleEndian.AppendUint32(out, v) }
	put64 := func(v uint64) { out = binary.LittleEndian.AppendUint64(out, v) }

	put64(8) // pointer to file section
	out = append(out, magicFile...)
	endField := len(out)
	put64(0) // end offset, patched below

	for _, e := range entries {
		fx.headerOffs = append(fx.headerOffs, int64(len(out)))
		encName := encodeName(t, e.name)

		out = append(out, magicEntry...) // DNBA
		put32(0)
		put32(chunkSize)
		out = append(out, make([]byte, 12)...)
		put32(uint32(len(e.data)))
		put32(0)
		put32(uint32(len(encName) / 2))
		out = append(out, encName...)

		fx.dataOffs = append(fx.dataOffs, int64(len(out)))
		out = append(out, encryptChunks(t, c, iv, chunkSize, e.data)...)
	}

	fx.dirOff = int64(len(out))
	out = append(out, magicDirectory...) // DNBS
	put32(0)                             // flags
	put32(uint32(len(entries)))
	for i, e := range entries {
		rec := make([]byte, dirRecordSize)
		binary.LittleEndian.PutUint64(rec[12:], uint64(len(e.data)))
		binary.LittleEndian.PutUint64(rec[20:], uint64(fx.headerOffs[i]))
		copy(rec[36:], encodeName(t, e.name))
		out = append(out, rec...)
	}

	out = append(out, magicTrailer...) // DNBF
	out = append(out, make([]byte, 12)...)
	put32(uint32(len(entries)))
	put32(uint32(fx.dirOff))
	put32(trailerSize + 4) // trailer size, including this field

	binary.LittleEndian.PutUint64(out[endField:], uint64(len(out)))
	fx.bytes = out
	return fx
}

func encodeName(t *testing.T, name string) []byte {
	t.Helper()
	enc, err := utf16le.NewEncoder().Bytes([]byte(name))
	if err != nil {
		t.Fatalf("encoding name %q: %v", name, err)
	}
	return enc
}

// encryptChunks mirrors the chunked encryption scheme: the IV chain starts
// at the session IV and advances once per chunk, the first chunk already
// using the encrypted IV.
func encryptChunks(t *testing.T, c *CTCrypt, iv []byte, chunkSize uint32, data []byte) []byte {
	t.Helper()
	if iv == nil {
		iv = make([]byte, 16)
	}
	chunk := int(chunkSize)
	if chunk <= 0 {
		chunk = len(data)
	}
	var out []byte
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		iv = c.nextIV(iv)
		ct, err := c.Encrypt(data[off:end], iv)
		if err != nil {
			t.Fatalf("encrypting chunk at %d: %v", off, err)
		}
		out = append(out, ct...)
	}
	return out
}
