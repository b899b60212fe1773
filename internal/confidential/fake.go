package confidential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"sync"
)

// FakeBackend stores plaintext tagged as encrypted. It honors the full
// Backend contract, including proof and grant checks, so engine tests see the
// same failure modes a real backend produces.
type FakeBackend struct {
	mu      sync.Mutex
	secret  [32]byte
	records map[Handle]*fakeRecord
}

type fakeRecord struct {
	value  uint64
	owner  Identity
	grants map[Identity]bool
}

// NewFakeBackend creates an empty fake backend with a random proof secret.
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{records: make(map[Handle]*fakeRecord)}
	if _, err := rand.Read(b.secret[:]); err != nil {
		panic("confidential: failed to seed fake backend: " + err.Error())
	}
	return b
}

// Seal records the plaintext under a fresh random handle. The proof is an
// HMAC over handle and owner so tampered inputs fail VerifyInput.
func (b *FakeBackend) Seal(value uint64, owner Identity) (Value, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var h Handle
	if _, err := rand.Read(h[:]); err != nil {
		return Value{}, err
	}
	b.records[h] = &fakeRecord{
		value:  value,
		owner:  owner,
		grants: map[Identity]bool{owner: true},
	}
	return Value{Handle: h, Proof: b.proofFor(h, owner), Owner: owner}, nil
}

func (b *FakeBackend) proofFor(h Handle, owner Identity) []byte {
	mac := hmac.New(sha256.New, b.secret[:])
	mac.Write(h[:])
	mac.Write([]byte(owner))
	return mac.Sum(nil)
}

// VerifyInput checks the handle exists, is bound to owner, and carries the
// proof issued at sealing time.
func (b *FakeBackend) VerifyInput(v Value, owner Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[v.Handle]
	if !ok {
		return ErrUnknownHandle
	}
	if rec.owner != owner {
		return ErrNotAuthorized
	}
	if !hmac.Equal(v.Proof, b.proofFor(v.Handle, owner)) {
		return ErrProofInvalid
	}
	return nil
}

// Open discloses the plaintext to the table authority.
func (b *FakeBackend) Open(v Value) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[v.Handle]
	if !ok {
		return 0, ErrUnknownHandle
	}
	return rec.value, nil
}

// Grant extends decryption rights on the handle to another identity.
func (b *FakeBackend) Grant(h Handle, to Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[h]
	if !ok {
		return ErrUnknownHandle
	}
	rec.grants[to] = true
	return nil
}

// PublicDecrypt opens each handle in order. Every handle must carry the
// Everyone grant.
func (b *FakeBackend) PublicDecrypt(handles []Handle) ([]uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]uint64, len(handles))
	for i, h := range handles {
		rec, ok := b.records[h]
		if !ok {
			return nil, ErrUnknownHandle
		}
		if !rec.grants[Everyone] {
			return nil, ErrNotAuthorized
		}
		out[i] = rec.value
	}
	return out, nil
}

// DecryptFor opens one handle for a requester holding a grant on it.
func (b *FakeBackend) DecryptFor(h Handle, requester Identity) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[h]
	if !ok {
		return 0, ErrUnknownHandle
	}
	if !rec.grants[requester] && !rec.grants[Everyone] {
		return 0, ErrNotAuthorized
	}
	return rec.value, nil
}

// VerifyReveal checks the claimed plaintext and ownership of the handle.
func (b *FakeBackend) VerifyReveal(h Handle, claimed uint64, owner Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[h]
	if !ok {
		return ErrUnknownHandle
	}
	if rec.owner != owner {
		return ErrNotAuthorized
	}
	if rec.value != claimed {
		return ErrRevealMismatch
	}
	return nil
}
