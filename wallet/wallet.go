// Package wallet defines the narrow collaborator interface the store
// orchestrator depends on. The wallet subsystem itself (mnemonic
// management, any blockchain integration) is explicitly out of scope; the
// core only ever asks for a public key.
package wallet

// KeySource is the one call the core needs from an external wallet. It is
// synchronous and blocking by design — any async/event-loop plumbing to a
// real wallet library lives outside the core, never inside it.
type KeySource interface {
	PublicKey() ([32]byte, error)
}

// Algorithm is the tag attached to every key this core consumes; the
// wallet subsystem is responsible for actually producing bls12-381 keys,
// the core treats the bytes as opaque regardless.
const Algorithm = "bls12-381"

// Static is a KeySource backed by a fixed key, useful for tests and for
// configs that pin `crypto.public_key` rather than calling a live wallet.
type Static [32]byte

func (s Static) PublicKey() ([32]byte, error) { return [32]byte(s), nil }
