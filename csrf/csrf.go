// Package csrf issues and verifies stateless CSRF tokens.
//
// A token is "<nonce>.<mac>" where nonce is a random UUID and mac is the
// base64url HMAC-SHA256 of the nonce under a key derived from the configured
// secret. Tokens carry no expiry: they verify until the secret is rotated.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/awnumar/memguard"

	"github.com/postcraft-hq/postcraft/internal/util"
	"github.com/postcraft-hq/postcraft/internal/uuid"
)

// MinSecretLength is the minimum accepted secret size in bytes.
const MinSecretLength = 32

const keyLabel = "postcraft/csrf/v1"

var (
	// ErrSecretTooShort is returned when a secret is shorter than MinSecretLength.
	ErrSecretTooShort = errors.New("csrf secret too short")
	// ErrDestroyed is returned after Destroy has been called.
	ErrDestroyed = errors.New("csrf protector destroyed")
)

// Protector generates and verifies tokens. It is safe for concurrent use.
// The derived HMAC key lives in a memguard Enclave and is only decrypted
// for the duration of a single MAC computation.
type Protector struct {
	key atomic.Pointer[memguard.Enclave]
}

// New creates a Protector bound to secret. The caller's slice is not retained.
func New(secret []byte) (*Protector, error) {
	p := &Protector{}
	if err := p.Rotate(secret); err != nil {
		return nil, err
	}
	return p, nil
}

// Rotate replaces the secret. Every token issued under the previous secret
// stops verifying immediately.
func (p *Protector) Rotate(secret []byte) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrSecretTooShort, len(secret), MinSecretLength)
	}
	derived, err := util.DeriveKey(secret, keyLabel)
	if err != nil {
		return err
	}
	// NewEnclave wipes derived.
	p.key.Store(memguard.NewEnclave(derived))
	return nil
}

// Generate returns a fresh token bound to the current secret.
func (p *Protector) Generate() (string, error) {
	nonce := uuid.New()
	mac, err := p.mac(nonce)
	if err != nil {
		return "", err
	}
	return nonce + "." + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Verify reports whether token was produced by Generate under the current
// secret. Malformed tokens never verify.
func (p *Protector) Verify(token string) bool {
	nonce, encoded, ok := strings.Cut(token, ".")
	if !ok || !uuid.Valid(nonce) || encoded == "" {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	want, err := p.mac(nonce)
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

// Destroy drops the key material. Subsequent calls fail.
func (p *Protector) Destroy() {
	p.key.Store(nil)
}

func (p *Protector) mac(nonce string) ([]byte, error) {
	enclave := p.key.Load()
	if enclave == nil {
		return nil, ErrDestroyed
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening csrf key: %w", err)
	}
	defer buf.Destroy()

	h := hmac.New(sha256.New, buf.Bytes())
	h.Write([]byte(nonce))
	return h.Sum(nil), nil
}
