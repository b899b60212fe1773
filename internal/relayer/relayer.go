// Package relayer implements the decryption sub-protocol: a client builds a
// batch of sealed handles, authorizes it with a one-off Schnorr keypair and a
// bounded validity window, and submits it to a decryption authority. The
// table engine itself never retries; retry policy lives here.
package relayer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/key"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
)

var suite = suites.MustFind("Ed25519")

var (
	// ErrAuthorityUnavailable marks transient authority failures; the client
	// retries these and nothing else.
	ErrAuthorityUnavailable = errors.New("decryption authority unavailable")
	// ErrWindowExpired rejects a request outside its validity window.
	ErrWindowExpired = errors.New("authorization window expired")
	// ErrBadAuthorization rejects a request whose signature does not verify.
	ErrBadAuthorization = errors.New("bad batch authorization")
)

// Entry is one handle to open, bound to the context it came from (the table
// ID), so an authorization cannot be replayed against another table.
type Entry struct {
	Handle  confidential.Handle
	Context string
}

// Request is a signed batch decryption authorization. Requester is the
// identity asking for the plaintexts; the transport asserts it the same way
// it asserts connection identities, the signature binds it to the batch, and
// the authority checks it against each handle's grant set.
type Request struct {
	Requester confidential.Identity
	Entries   []Entry
	PublicKey []byte // ephemeral Schnorr verification key
	NotBefore time.Time
	Window    time.Duration
	Signature []byte
}

// digest is the canonical byte string the batch signature covers.
func digest(requester confidential.Identity, entries []Entry, publicKey []byte, notBefore time.Time, window time.Duration) []byte {
	h := sha256.New()
	var lbuf [8]byte
	binary.BigEndian.PutUint64(lbuf[:], uint64(len(requester)))
	h.Write(lbuf[:])
	h.Write([]byte(requester))
	h.Write(publicKey)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(notBefore.UnixNano()))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(window))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(len(entries)))
	h.Write(buf[:])
	for _, e := range entries {
		h.Write(e.Handle[:])
		binary.BigEndian.PutUint64(buf[:], uint64(len(e.Context)))
		h.Write(buf[:])
		h.Write([]byte(e.Context))
	}
	return h.Sum(nil)
}

// Verify checks a request's validity window and batch signature. Authorities
// call this before opening anything.
func Verify(req Request, now time.Time) error {
	if now.Before(req.NotBefore) || now.After(req.NotBefore.Add(req.Window)) {
		return ErrWindowExpired
	}
	pub := suite.Point()
	if err := pub.UnmarshalBinary(req.PublicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAuthorization, err)
	}
	msg := digest(req.Requester, req.Entries, req.PublicKey, req.NotBefore, req.Window)
	if err := schnorr.Verify(suite, pub, msg, req.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAuthorization, err)
	}
	return nil
}

// DecryptionAuthority opens an authorized batch of handles.
type DecryptionAuthority interface {
	Decrypt(ctx context.Context, req Request) (map[confidential.Handle]uint64, error)
}

// Options tune the client.
type Options struct {
	// Window is the authorization validity window; one minute when zero.
	Window time.Duration
	// MaxAttempts bounds submissions per batch; 5 when zero.
	MaxAttempts int
	// BaseBackoff is the first retry delay, doubled per attempt; 250ms when
	// zero.
	BaseBackoff time.Duration

	Clock  quartz.Clock
	Logger *log.Logger
}

// Client authorizes and submits decryption batches.
type Client struct {
	authority   DecryptionAuthority
	clock       quartz.Clock
	logger      *log.Logger
	window      time.Duration
	maxAttempts int
	baseBackoff time.Duration
}

// NewClient creates a batch decryption client for the authority.
func NewClient(authority DecryptionAuthority, opts Options) *Client {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 250 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Client{
		authority:   authority,
		clock:       opts.Clock,
		logger:      opts.Logger.WithPrefix("relayer"),
		window:      opts.Window,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
	}
}

// Authorize signs a batch for the requester with a fresh ephemeral keypair.
// The private half is dropped once the signature exists; nothing can extend
// the batch later.
func (c *Client) Authorize(requester confidential.Identity, entries []Entry) (Request, error) {
	if len(entries) == 0 {
		return Request{}, errors.New("relayer: empty batch")
	}
	kp := key.NewKeyPair(suite)
	pubBytes, err := kp.Public.MarshalBinary()
	if err != nil {
		return Request{}, fmt.Errorf("marshal ephemeral key: %w", err)
	}

	notBefore := c.clock.Now()
	msg := digest(requester, entries, pubBytes, notBefore, c.window)
	sig, err := schnorr.Sign(suite, kp.Private, msg)
	if err != nil {
		return Request{}, fmt.Errorf("sign batch: %w", err)
	}

	return Request{
		Requester: requester,
		Entries:   entries,
		PublicKey: pubBytes,
		NotBefore: notBefore,
		Window:    c.window,
		Signature: sig,
	}, nil
}

// Decrypt authorizes the batch for the requester and submits it, retrying
// with exponential backoff while the authority is unavailable.
func (c *Client) Decrypt(ctx context.Context, requester confidential.Identity, entries []Entry) (map[confidential.Handle]uint64, error) {
	req, err := c.Authorize(requester, entries)
	if err != nil {
		return nil, err
	}

	delay := c.baseBackoff
	for attempt := 1; ; attempt++ {
		values, err := c.authority.Decrypt(ctx, req)
		if err == nil {
			return values, nil
		}
		if !errors.Is(err, ErrAuthorityUnavailable) {
			return nil, err
		}
		if attempt >= c.maxAttempts {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		c.logger.Warn("authority unavailable, retrying", "attempt", attempt, "delay", delay)

		timer := c.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// BackendAuthority serves batches straight from a confidential backend.
// It verifies the authorization before opening anything.
type BackendAuthority struct {
	backend confidential.Backend
	clock   quartz.Clock
}

// NewBackendAuthority wraps a backend as a decryption authority.
func NewBackendAuthority(backend confidential.Backend, clock quartz.Clock) *BackendAuthority {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &BackendAuthority{backend: backend, clock: clock}
}

// Decrypt verifies the request and opens every handle in the batch. Each
// handle is opened on behalf of the requester, so the whole batch fails when
// any handle lacks a grant for that identity.
func (a *BackendAuthority) Decrypt(ctx context.Context, req Request) (map[confidential.Handle]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Verify(req, a.clock.Now()); err != nil {
		return nil, err
	}

	out := make(map[confidential.Handle]uint64, len(req.Entries))
	for _, e := range req.Entries {
		v, err := a.backend.DecryptFor(e.Handle, req.Requester)
		if err != nil {
			return nil, err
		}
		out[e.Handle] = v
	}
	return out, nil
}
