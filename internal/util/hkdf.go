package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeyLength is the size of keys returned by DeriveKey.
const DerivedKeyLength = 32

// DeriveKey expands secret into a DerivedKeyLength-byte key for the given
// purpose label with HKDF-SHA256. Distinct labels yield unrelated keys.
func DeriveKey(secret []byte, label string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("deriving %s key: empty secret", label)
	}
	r := hkdf.New(sha256.New, secret, nil, []byte(label))
	key := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", label, err)
	}
	return key, nil
}
