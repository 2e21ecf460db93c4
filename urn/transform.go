package urn

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// PublicKey is the opaque collaborator output from the wallet subsystem:
// raw key bytes plus an algorithm tag. The core never interprets the bytes
// beyond length-prefixing them into the transform.
type PublicKey struct {
	Bytes     []byte
	Algorithm string
}

const transformDomain = "digstore_urn_transform_v1:"

// Transform computes the deterministic, one-way storage address for urn
// under key: SHA-256(domain || algorithm || len(key) || key || len(urn) || urn).
// Returns a raw [32]byte primitive so callers can choose hex or binary
// representation.
func Transform(u *Urn, key PublicKey) [32]byte {
	urnStr := u.String()

	h := sha256.New()
	h.Write([]byte(transformDomain))
	h.Write([]byte(key.Algorithm))

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key.Bytes)))
	h.Write(lenBuf[:])
	h.Write(key.Bytes)

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(urnStr)))
	h.Write(lenBuf[:])
	h.Write([]byte(urnStr))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// StorageAddress is the hex encoding of Transform — the opaque key a
// storage medium actually sees.
func StorageAddress(u *Urn, key PublicKey) string {
	addr := Transform(u, key)
	return hex.EncodeToString(addr[:])
}
