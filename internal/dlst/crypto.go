package dlst

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// CTCrypt is the CypherTec cipher used for DLST payloads: AES-128 in CBC
// mode, with inputs completed to the block size before each operation and
// the output truncated back to the input length. The container's length
// fields are authoritative, so padding is never validated or retained.
type CTCrypt struct {
	block cipher.Block
}

// NewCTCrypt creates a cipher from a 16-byte AES key.
func NewCTCrypt(key []byte) (*CTCrypt, error) {
	if len(key) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	return &CTCrypt{block: block}, nil
}

// zeroIV is the default IV when the caller supplies none.
var zeroIV = make([]byte, aes.BlockSize)

func checkIV(iv []byte) ([]byte, error) {
	if iv == nil {
		return zeroIV, nil
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrIVSize, len(iv))
	}
	return iv, nil
}

// Encrypt CBC-encrypts data with the given IV. The ciphertext has the same
// length as the plaintext: the padded final block is encrypted and then cut
// back, matching the on-disk format.
func (c *CTCrypt) Encrypt(data, iv []byte) ([]byte, error) {
	iv, err := checkIV(iv)
	if err != nil {
		return nil, err
	}
	padded := padBlock(data)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(padded, padded)
	return padded[:len(data)], nil
}

// Decrypt CBC-decrypts data with the given IV, truncating the plaintext to
// the ciphertext length. A non-aligned tail is completed before decryption;
// the bytes kept are exactly the declared length.
func (c *CTCrypt) Decrypt(data, iv []byte) ([]byte, error) {
	iv, err := checkIV(iv)
	if err != nil {
		return nil, err
	}
	padded := padBlock(data)
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(padded, padded)
	return padded[:len(data)], nil
}

// nextIV advances the chunk IV chain by one step: each chunk's IV is the
// single-block encryption of the previous one, starting from the session
// IV. The first chunk already uses the encrypted IV, not the session IV.
// The chain restarts from the session IV for every entry.
func (c *CTCrypt) nextIV(iv []byte) []byte {
	out := make([]byte, aes.BlockSize)
	c.block.Encrypt(out, iv)
	return out
}

// padBlock returns a copy of data completed to a whole number of AES
// blocks. The fill bytes hold the pad length, PKCS7-style; an aligned
// input still gains a full block, which the caller truncates away.
func padBlock(data []byte) []byte {
	pad := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	return padded
}
