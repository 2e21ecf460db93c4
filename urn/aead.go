package urn

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
)

const nonceSize = 12
const encryptionKeyDomain = "digstore_encryption_key:"

// DeriveEncryptionKey computes SHA-256(domain || urn) — derived from the
// URN string alone, not the public key, so a holder of the URN (but not
// the key used to find it) can still decrypt.
func DeriveEncryptionKey(u *Urn) [32]byte {
	h := sha256.New()
	h.Write([]byte(encryptionKeyDomain))
	h.Write([]byte(u.String()))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.EncryptionFailed, err, "building AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.EncryptionFailed, err, "building GCM mode")
	}
	return gcm, nil
}

// EncryptChunk encrypts data under the URN-derived key with a freshly
// sampled nonce, returning nonce || ciphertext || tag.
func EncryptChunk(data []byte, u *Urn) ([]byte, error) {
	key := DeriveEncryptionKey(u)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.EncryptionFailed, err, "sampling nonce")
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// DecryptChunk splits the leading nonce, derives the same URN key, and
// verifies+decrypts. Fails with DecryptionFailed on any tag mismatch,
// including decryption attempted under the wrong URN.
func DecryptChunk(encrypted []byte, u *Urn) ([]byte, error) {
	if len(encrypted) < nonceSize {
		return nil, digstoreerr.New(digstoreerr.DecryptionFailed, "encrypted chunk shorter than nonce")
	}
	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]

	key := DeriveEncryptionKey(u)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.DecryptionFailed, err, "AES-GCM tag verification failed")
	}
	return plaintext, nil
}
