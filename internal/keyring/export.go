package keyring

import (
	"encoding/hex"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/BurntSushi/toml"
)

// exportDoc is the TOML document carried inside an exported keyring.
type exportDoc struct {
	Keys []exportKey `toml:"keys"`
}

type exportKey struct {
	WorkID string `toml:"work_id"`
	Key    string `toml:"key"`
	IV     string `toml:"iv"`
	Label  string `toml:"label,omitempty"`
}

// Export writes every stored record to w as a TOML document encrypted with
// the passphrase using age's scrypt-based recipient.
func (s *Store) Export(w io.Writer, passphrase string) error {
	records, err := s.List()
	if err != nil {
		return err
	}

	doc := exportDoc{Keys: make([]exportKey, 0, len(records))}
	for _, rec := range records {
		doc.Keys = append(doc.Keys, exportKey{
			WorkID: rec.WorkID,
			Key:    hex.EncodeToString(rec.Key),
			IV:     hex.EncodeToString(rec.IV),
			Label:  rec.Label,
		})
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	enc, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if err := toml.NewEncoder(enc).Encode(doc); err != nil {
		return fmt.Errorf("encoding keyring: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Import reads an Export-produced document from r, decrypts it with the
// passphrase and stores every key, replacing records for work IDs already
// present. It returns the number of keys imported.
func (s *Store) Import(r io.Reader, passphrase string) (int, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return 0, fmt.Errorf("creating scrypt identity: %w", err)
	}
	dec, err := age.Decrypt(r, identity)
	if err != nil {
		return 0, fmt.Errorf("decrypting keyring: %w", err)
	}

	var doc exportDoc
	if _, err := toml.NewDecoder(dec).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decoding keyring: %w", err)
	}

	for _, k := range doc.Keys {
		key, err := hex.DecodeString(k.Key)
		if err != nil {
			return 0, fmt.Errorf("key for %s: %w", k.WorkID, err)
		}
		iv, err := hex.DecodeString(k.IV)
		if err != nil {
			return 0, fmt.Errorf("iv for %s: %w", k.WorkID, err)
		}
		if _, err := s.Put(k.WorkID, key, iv, k.Label); err != nil {
			return 0, err
		}
	}
	return len(doc.Keys), nil
}
