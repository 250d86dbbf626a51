package keyring

import (
	"fmt"

	"github.com/sora-grayscale/splitvault/crypto"
)

// State is the terminal state of a key resolution. The explicit enum
// replaces juggling isLoading/hasKey/needsPassword flags; invalid
// combinations are simply not representable.
type State int

const (
	// StateReady means a usable decryption key is in hand.
	StateReady State = iota
	// StateNeedsPassword means the transport half is known but the
	// password-derived half must come from a password prompt.
	StateNeedsPassword
	// StateNeedsKey means no key material is available at all. Only the
	// original share link recovers from this.
	StateNeedsKey
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNeedsPassword:
		return "needs-password"
	case StateNeedsKey:
		return "needs-key"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request describes one resource-view load.
type Request struct {
	ResourceID string
	// Fragment is the raw fragment from the visited URL, empty when the
	// link carried none.
	Fragment string
	// PasswordProtected is whether the resource has a password set
	// (known from its server-visible metadata).
	PasswordProtected bool
	// GenerateIfMissing requests a fresh data key when none exists.
	// Set only on resource creation.
	GenerateIfMissing bool
}

// Resolution is the outcome of a Resolve call.
type Resolution struct {
	State State
	// Key is the effective decryption key. Set only when State is
	// StateReady.
	Key []byte
	// Transport is the transport half when known (StateReady or
	// StateNeedsPassword).
	Transport []byte
	// Fragment is the canonical fragment to restore onto the URL so
	// reloading and sharing keep working, when the transport is known.
	Fragment string
	// Generated reports whether a fresh data key was created.
	Generated bool
}

// RequireKey returns the effective key, or ErrMissingKeyMaterial when the
// resolution did not reach StateReady. The error wraps the state so the
// caller can prompt for a password or for the original link accordingly.
func (res *Resolution) RequireKey() ([]byte, error) {
	if res.State == StateReady {
		return res.Key, nil
	}
	return nil, fmt.Errorf("%w: resolution is %s", crypto.ErrMissingKeyMaterial, res.State)
}

// Resolver reconciles the URL fragment with the durable and session key
// caches on every resource-view load. Concurrent resolutions for the same
// resource converge: the only value ever written back is the same key, so
// last-writer-wins is safe.
type Resolver struct {
	durable DurableStore
	session SessionStore
}

func NewResolver(durable DurableStore, session SessionStore) *Resolver {
	return &Resolver{durable: durable, session: session}
}

// Resolve runs the load-time state machine for one resource.
func (r *Resolver) Resolve(req Request) (*Resolution, error) {
	transport, _, err := ParseFragmentString(req.Fragment)
	if err != nil {
		return nil, err
	}

	if transport == nil {
		cached, ok, err := r.durable.Get(req.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("reading durable key cache: %w", err)
		}
		if ok {
			transport = cached
		}
	}

	generated := false
	if transport == nil && req.GenerateIfMissing {
		transport, err = crypto.NewDataKey()
		if err != nil {
			return nil, fmt.Errorf("generating data key: %w", err)
		}
		generated = true
	}

	if transport == nil {
		return &Resolution{State: StateNeedsKey}, nil
	}

	// Write back so a reload without the original link still resolves.
	// Idempotent: the value is always the same key.
	if err := r.durable.Put(req.ResourceID, transport); err != nil {
		return nil, fmt.Errorf("writing durable key cache: %w", err)
	}

	res := &Resolution{
		Transport: transport,
		Fragment:  Fragment(transport),
		Generated: generated,
	}

	if !req.PasswordProtected {
		res.State = StateReady
		res.Key = transport
		return res, nil
	}

	passwordKey, ok := r.session.Get(req.ResourceID)
	if !ok {
		res.State = StateNeedsPassword
		return res, nil
	}

	combined, err := crypto.Combine(transport, passwordKey)
	if err != nil {
		return nil, fmt.Errorf("recombining cached halves: %w", err)
	}
	res.State = StateReady
	res.Key = combined
	return res, nil
}

// CompleteWithPassword finishes a NeedsPassword resolution once the
// password subsystem has produced the derived half. The derived key goes
// into the session tier only; the durable tier keeps holding just the
// transport half.
func (r *Resolver) CompleteWithPassword(resourceID string, transportKey, passwordKey []byte) (*Resolution, error) {
	combined, err := crypto.Combine(transportKey, passwordKey)
	if err != nil {
		return nil, err
	}
	r.session.Put(resourceID, passwordKey)
	return &Resolution{
		State:     StateReady,
		Key:       combined,
		Transport: transportKey,
		Fragment:  Fragment(transportKey),
	}, nil
}

// Forget drops both cached halves for a resource, e.g. when it is deleted.
func (r *Resolver) Forget(resourceID string) error {
	r.session.Delete(resourceID)
	if err := r.durable.Delete(resourceID); err != nil {
		return fmt.Errorf("clearing durable key cache: %w", err)
	}
	return nil
}
