package keyring

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sora-grayscale/splitvault/crypto"
)

func TestFragmentRoundTrip(t *testing.T) {
	key, err := crypto.NewDataKey()
	require.NoError(t, err)

	share, err := url.Parse("https://example.com/groups/g1" + Fragment(key))
	require.NoError(t, err)

	parsed, present, err := ParseFragment(share)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, key, parsed)
}

func TestFragmentAbsent(t *testing.T) {
	share, err := url.Parse("https://example.com/groups/g1")
	require.NoError(t, err)

	_, present, err := ParseFragment(share)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestFragmentRejectsBadLength(t *testing.T) {
	_, present, err := ParseFragmentString("#dG9vc2hvcnQ") // "tooshort"
	require.True(t, present)
	require.Error(t, err)
	assert.True(t, errors.Is(err, crypto.ErrInvalidKeyFormat))
}

func TestSetFragment(t *testing.T) {
	key, err := crypto.NewDataKey()
	require.NoError(t, err)

	share, err := url.Parse("https://example.com/groups/g1")
	require.NoError(t, err)
	SetFragment(share, key)

	parsed, present, err := ParseFragment(share)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, key, parsed)
}

func TestResolveFromFragment(t *testing.T) {
	durable := NewMemoryStore()
	r := NewResolver(durable, NewMemorySessionStore())

	key, err := crypto.NewDataKey()
	require.NoError(t, err)

	res, err := r.Resolve(Request{
		ResourceID: "g1",
		Fragment:   Fragment(key),
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.Equal(t, key, res.Key)
	assert.Equal(t, Fragment(key), res.Fragment)

	// The key was written back, so a fragment-less reload still resolves.
	res, err = r.Resolve(Request{ResourceID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.Equal(t, key, res.Key)
}

func TestResolveNeedsKey(t *testing.T) {
	r := NewResolver(NewMemoryStore(), NewMemorySessionStore())

	res, err := r.Resolve(Request{ResourceID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, StateNeedsKey, res.State)
	assert.Nil(t, res.Key)

	_, err = res.RequireKey()
	assert.True(t, errors.Is(err, crypto.ErrMissingKeyMaterial))
}

func TestResolveGeneratesOnCreate(t *testing.T) {
	durable := NewMemoryStore()
	r := NewResolver(durable, NewMemorySessionStore())

	res, err := r.Resolve(Request{
		ResourceID:        "new-group",
		GenerateIfMissing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.True(t, res.Generated)
	require.Len(t, res.Key, crypto.DataKeySize)

	cached, ok, err := durable.Get("new-group")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Key, cached)
}

func TestResolvePasswordProtected(t *testing.T) {
	durable := NewMemoryStore()
	session := NewMemorySessionStore()
	r := NewResolver(durable, session)

	transport, err := crypto.NewDataKey()
	require.NoError(t, err)

	// Only the transport half: the password prompt must run.
	res, err := r.Resolve(Request{
		ResourceID:        "g2",
		Fragment:          Fragment(transport),
		PasswordProtected: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateNeedsPassword, res.State)
	assert.Nil(t, res.Key)
	assert.Equal(t, transport, res.Transport)

	// The password subsystem supplies the missing half.
	salt, err := crypto.NewSalt()
	require.NoError(t, err)
	passwordKey, err := crypto.DeriveKey("correct-horse", salt)
	require.NoError(t, err)

	completed, err := r.CompleteWithPassword("g2", transport, passwordKey)
	require.NoError(t, err)
	assert.Equal(t, StateReady, completed.State)

	expected, err := crypto.Combine(transport, passwordKey)
	require.NoError(t, err)
	assert.Equal(t, expected, completed.Key)

	// With both halves cached, the next load recombines by itself.
	res, err = r.Resolve(Request{
		ResourceID:        "g2",
		PasswordProtected: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.Equal(t, expected, res.Key)
}

func TestResolveConvergesForConcurrentLoads(t *testing.T) {
	durable := NewMemoryStore()
	r := NewResolver(durable, NewMemorySessionStore())

	key, err := crypto.NewDataKey()
	require.NoError(t, err)
	req := Request{ResourceID: "g3", Fragment: Fragment(key)}

	done := make(chan *Resolution, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := r.Resolve(req)
			if err != nil {
				done <- nil
				return
			}
			done <- res
		}()
	}
	for i := 0; i < 8; i++ {
		res := <-done
		require.NotNil(t, res)
		assert.Equal(t, StateReady, res.State)
		assert.Equal(t, key, res.Key)
	}
}

func TestForget(t *testing.T) {
	durable := NewMemoryStore()
	session := NewMemorySessionStore()
	r := NewResolver(durable, session)

	key, err := crypto.NewDataKey()
	require.NoError(t, err)
	_, err = r.Resolve(Request{ResourceID: "g4", Fragment: Fragment(key)})
	require.NoError(t, err)

	require.NoError(t, r.Forget("g4"))
	res, err := r.Resolve(Request{ResourceID: "g4"})
	require.NoError(t, err)
	assert.Equal(t, StateNeedsKey, res.State)
}

func TestBoltStore(t *testing.T) {
	store, err := NewBoltStoreFromFile(filepath.Join(t.TempDir(), "keys.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	key, err := crypto.NewDataKey()
	require.NoError(t, err)

	_, ok, err := store.Get("g1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put("g1", key))
	cached, ok, err := store.Get("g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key, cached)

	// Wrong-length keys never reach the cache.
	err = store.Put("g2", key[:8])
	assert.True(t, errors.Is(err, crypto.ErrInvalidKeyFormat))

	require.NoError(t, store.Delete("g1"))
	_, ok, err = store.Get("g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySessionStoreWipe(t *testing.T) {
	session := NewMemorySessionStore()
	key, err := crypto.NewDataKey()
	require.NoError(t, err)

	session.Put("g1", key)
	_, ok := session.Get("g1")
	require.True(t, ok)

	session.Wipe()
	_, ok = session.Get("g1")
	assert.False(t, ok)
}
