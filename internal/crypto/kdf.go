package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes derived from the configured state secret
const (
	PurposeState   = "oauth-state"
	PurposeBinding = "browser-binding"
)

// DeriveKey expands secret into a 32-byte key bound to purpose, so one
// configured secret never signs two kinds of token with the same key.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	r := hkdf.New(sha256.New, secret, nil, []byte("checkin-front/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}
	return key, nil
}
