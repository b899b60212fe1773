// Package confidential defines the opaque ciphertext values the engine deals
// in and the backend capability that produces and verifies them. The engine
// never inspects ciphertext; everything it needs goes through Backend.
package confidential

import (
	"encoding/hex"
	"errors"
)

// Identity is an address-like identifier for a participant or authority.
type Identity string

// Everyone is the wildcard grantee. Granting a handle to Everyone makes its
// plaintext publicly decryptable, as with community cards once their street
// is dealt.
const Everyone Identity = "*"

// Handle is the opaque fixed-size identifier of a sealed value.
type Handle [32]byte

// String returns the hex form of the handle.
func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the handle is the empty sentinel.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// ParseHandle decodes the hex form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(s)
	if err != nil {
		return Handle{}, err
	}
	if len(b) != len(h) {
		return Handle{}, errors.New("handle must be 32 bytes")
	}
	copy(h[:], b)
	return h, nil
}

// Value is a sealed scalar: a ciphertext handle plus the proof produced at
// sealing time. The decryption capability (which contract/table context and
// which owner may request opening) is fixed at creation and immutable.
type Value struct {
	Handle Handle
	Proof  []byte
	Owner  Identity
}

// IsZero reports whether the value is unset.
func (v Value) IsZero() bool {
	return v.Handle.IsZero()
}

var (
	// ErrUnknownHandle is returned for handles the backend never issued.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")
	// ErrProofInvalid is returned when a ciphertext's input proof does not verify.
	ErrProofInvalid = errors.New("input proof verification failed")
	// ErrNotAuthorized is returned when the requesting identity holds no
	// decryption grant for the handle.
	ErrNotAuthorized = errors.New("identity not authorized for handle")
	// ErrRevealMismatch is returned when a claimed plaintext does not match
	// the sealed value.
	ErrRevealMismatch = errors.New("claimed plaintext does not match ciphertext")
)

// Backend is the cryptographic capability the engine calls but never
// implements. A fake backend that stores plaintext tagged as "encrypted" is
// sufficient to exercise the engine.
type Backend interface {
	// Seal encrypts value for owner and returns the handle/proof pair.
	Seal(value uint64, owner Identity) (Value, error)

	// VerifyInput validates an externally produced ciphertext and its proof
	// against the claimed owner. It does not disclose the plaintext.
	VerifyInput(v Value, owner Identity) error

	// Open discloses the plaintext to the table authority. Used when a
	// verified buy-in is admitted into table accounting.
	Open(v Value) (uint64, error)

	// Grant extends decryption rights on the handle to another identity.
	// Granting to Everyone makes the handle publicly decryptable.
	Grant(h Handle, to Identity) error

	// PublicDecrypt opens values previously granted to Everyone, such as
	// community cards revealed by a street transition. Handles without the
	// public grant fail with ErrNotAuthorized.
	PublicDecrypt(handles []Handle) ([]uint64, error)

	// DecryptFor opens a single handle on behalf of requester, who must be
	// the value's owner or hold a grant on it.
	DecryptFor(h Handle, requester Identity) (uint64, error)

	// VerifyReveal checks that claimed is the plaintext sealed under h and
	// that owner is the identity the value was bound to.
	VerifyReveal(h Handle, claimed uint64, owner Identity) error
}
