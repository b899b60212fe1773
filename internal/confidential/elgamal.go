package confidential

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/proof"
	"go.dedis.ch/kyber/v3/suites"
)

var suite = suites.MustFind("Ed25519")

// ElGamalBackend seals values with ElGamal encryption against a table
// authority keypair. Each sealed value carries a proof of knowledge of the
// encryption nonce, bound to the owner identity, so malformed or replayed
// ciphertexts fail verification.
type ElGamalBackend struct {
	mu      sync.Mutex
	private kyber.Scalar
	public  kyber.Point
	records map[Handle]*elgamalRecord
}

type elgamalRecord struct {
	ephemeral kyber.Point // R = g^r
	cipher    kyber.Point // C = M + X^r
	owner     Identity
	grants    map[Identity]bool
}

// NewElGamalBackend creates a backend with a fresh authority keypair.
func NewElGamalBackend() *ElGamalBackend {
	x := suite.Scalar().Pick(suite.RandomStream())
	return &ElGamalBackend{
		private: x,
		public:  suite.Point().Mul(x, nil),
		records: make(map[Handle]*elgamalRecord),
	}
}

// AuthorityKey returns the authority public key clients encrypt against.
func (b *ElGamalBackend) AuthorityKey() kyber.Point {
	return b.public
}

func inputPredicate() proof.Predicate {
	return proof.Rep("R", "r", "B")
}

func protocolName(owner Identity) string {
	return "cipherdeck/input/" + string(owner)
}

func handleFor(ephemeral, cipher kyber.Point) (Handle, error) {
	var h Handle
	rb, err := ephemeral.MarshalBinary()
	if err != nil {
		return h, err
	}
	cb, err := cipher.MarshalBinary()
	if err != nil {
		return h, err
	}
	sum := sha256.New()
	sum.Write(rb)
	sum.Write(cb)
	copy(h[:], sum.Sum(nil))
	return h, nil
}

// Seal encrypts value for owner. The plaintext is embedded as an 8-byte
// big-endian payload in a curve point.
func (b *ElGamalBackend) Seal(value uint64, owner Identity) (Value, error) {
	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], value)

	m := suite.Point().Embed(payload[:], suite.RandomStream())
	r := suite.Scalar().Pick(suite.RandomStream())
	ephemeral := suite.Point().Mul(r, nil)
	c := suite.Point().Add(m, suite.Point().Mul(r, b.public))

	h, err := handleFor(ephemeral, c)
	if err != nil {
		return Value{}, err
	}

	pval := map[string]kyber.Point{"R": ephemeral, "B": suite.Point().Base()}
	sval := map[string]kyber.Scalar{"r": r}
	prover := inputPredicate().Prover(suite, sval, pval, nil)
	proofBytes, err := proof.HashProve(suite, protocolName(owner), prover)
	if err != nil {
		return Value{}, err
	}

	b.mu.Lock()
	b.records[h] = &elgamalRecord{
		ephemeral: ephemeral,
		cipher:    c,
		owner:     owner,
		grants:    map[Identity]bool{owner: true},
	}
	b.mu.Unlock()

	return Value{Handle: h, Proof: proofBytes, Owner: owner}, nil
}

// VerifyInput re-verifies the nonce proof against the stored ciphertext and
// the claimed owner.
func (b *ElGamalBackend) VerifyInput(v Value, owner Identity) error {
	b.mu.Lock()
	rec, ok := b.records[v.Handle]
	b.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	if rec.owner != owner {
		return ErrNotAuthorized
	}

	pval := map[string]kyber.Point{"R": rec.ephemeral, "B": suite.Point().Base()}
	verifier := inputPredicate().Verifier(suite, pval)
	if err := proof.HashVerify(suite, protocolName(owner), verifier, v.Proof); err != nil {
		return ErrProofInvalid
	}
	return nil
}

func (b *ElGamalBackend) decrypt(rec *elgamalRecord) (uint64, error) {
	shared := suite.Point().Mul(b.private, rec.ephemeral)
	m := suite.Point().Sub(rec.cipher, shared)
	payload, err := m.Data()
	if err != nil || len(payload) != 8 {
		return 0, ErrRevealMismatch
	}
	return binary.BigEndian.Uint64(payload), nil
}

// Open discloses the plaintext to the table authority.
func (b *ElGamalBackend) Open(v Value) (uint64, error) {
	b.mu.Lock()
	rec, ok := b.records[v.Handle]
	b.mu.Unlock()
	if !ok {
		return 0, ErrUnknownHandle
	}
	return b.decrypt(rec)
}

// Grant extends decryption rights on the handle to another identity.
func (b *ElGamalBackend) Grant(h Handle, to Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[h]
	if !ok {
		return ErrUnknownHandle
	}
	rec.grants[to] = true
	return nil
}

// PublicDecrypt opens each handle with the authority key. Every handle must
// carry the Everyone grant.
func (b *ElGamalBackend) PublicDecrypt(handles []Handle) ([]uint64, error) {
	out := make([]uint64, len(handles))
	for i, h := range handles {
		b.mu.Lock()
		rec, ok := b.records[h]
		public := ok && rec.grants[Everyone]
		b.mu.Unlock()
		if !ok {
			return nil, ErrUnknownHandle
		}
		if !public {
			return nil, ErrNotAuthorized
		}
		v, err := b.decrypt(rec)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DecryptFor opens one handle for a requester holding a grant on it.
func (b *ElGamalBackend) DecryptFor(h Handle, requester Identity) (uint64, error) {
	b.mu.Lock()
	rec, ok := b.records[h]
	allowed := ok && (rec.grants[requester] || rec.grants[Everyone])
	b.mu.Unlock()
	if !ok {
		return 0, ErrUnknownHandle
	}
	if !allowed {
		return 0, ErrNotAuthorized
	}
	return b.decrypt(rec)
}

// VerifyReveal decrypts the sealed value and compares it with the claim.
func (b *ElGamalBackend) VerifyReveal(h Handle, claimed uint64, owner Identity) error {
	b.mu.Lock()
	rec, ok := b.records[h]
	b.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	if rec.owner != owner {
		return ErrNotAuthorized
	}
	v, err := b.decrypt(rec)
	if err != nil {
		return err
	}
	if v != claimed {
		return ErrRevealMismatch
	}
	return nil
}
