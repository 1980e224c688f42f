package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonkit/tonconnect/crypto"
	"github.com/tonkit/tonconnect/storage"
)

func newTestSession(t *testing.T, walletID, originURL, clientID string) *Session {
	t.Helper()

	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	return &Session{
		OriginURL: originURL,
		WalletID:  walletID,
		AccountID: "0:abc0000000000000000000000000000000000000000000000000000000000000",
		ClientID:  clientID,
		KeyPair:   keyPair,
		Manifest:  &Manifest{URL: originURL, Name: "Demo dApp"},
		CreatedAt: time.Now(),
	}
}

func TestRegistryPutGetDelete(t *testing.T) {
	store := storage.NewMemStore()
	reg := NewRegistry(store)

	s := newTestSession(t, "w1", "https://dapp.example/", "client-1")
	require.NoError(t, reg.Put(s))

	got, err := reg.Get("w1", "https://dapp.example/some/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", got.ClientID)

	// Storage and snapshot move together.
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Delete("w1", "https://dapp.example/"))
	_, err = reg.Get("w1", "https://dapp.example/")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())

	// Deleting again yields the same end state and no error.
	require.NoError(t, reg.Delete("w1", "https://dapp.example/"))
	assert.Equal(t, 0, reg.Len())
}

func TestFindByHost(t *testing.T) {
	reg := NewRegistry(storage.NewMemStore())

	require.NoError(t, reg.Put(newTestSession(t, "w1", "https://Dapp.Example/app", "client-1")))
	require.NoError(t, reg.Put(newTestSession(t, "w2", "https://dapp.example/app", "client-2")))

	cases := []struct {
		name       string
		url        string
		walletID   string
		wantClient string
		wantMiss   bool
	}{
		{name: "Exact host", url: "https://dapp.example/", walletID: "w1", wantClient: "client-1"},
		{name: "Case-insensitive host", url: "https://DAPP.EXAMPLE/other", walletID: "w1", wantClient: "client-1"},
		{name: "Path and query ignored", url: "https://dapp.example/a/b?x=1#f", walletID: "w1", wantClient: "client-1"},
		{name: "Wallet scoped", url: "https://dapp.example/", walletID: "w2", wantClient: "client-2"},
		{name: "Unknown host", url: "https://other.example/", walletID: "w1", wantMiss: true},
		{name: "Unknown wallet", url: "https://dapp.example/", walletID: "w9", wantMiss: true},
		{name: "Unparseable url", url: "garbage", walletID: "w1", wantMiss: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := reg.FindByHost(tc.url, tc.walletID)
			if tc.wantMiss {
				assert.ErrorIs(t, err, ErrSessionNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantClient, s.ClientID)
		})
	}
}

func TestDistinctByFingerprint(t *testing.T) {
	reg := NewRegistry(storage.NewMemStore())

	shared := newTestSession(t, "w1", "https://dapp.example/", "client-1")
	require.NoError(t, reg.Put(shared))

	// Second origin carrying the same key pair (same effective dApp).
	twin := *shared
	twin.OriginURL = "https://alias.dapp.example/"
	require.NoError(t, reg.Put(&twin))

	other := newTestSession(t, "w1", "https://other.example/", "client-3")
	require.NoError(t, reg.Put(other))

	urls := []string{
		"https://dapp.example/",
		"https://alias.dapp.example/",
		"https://other.example/",
		"https://unknown.example/",
	}

	apps := reg.DistinctByFingerprint(urls, "w1")
	require.Len(t, apps, 2, "sessions sharing a fingerprint must collapse")
	assert.Equal(t, shared.Fingerprint(), apps[0].Fingerprint())
	assert.Equal(t, other.Fingerprint(), apps[1].Fingerprint())
}

func TestDuplicateCreatesTolerated(t *testing.T) {
	// connect() generates a fresh key pair per call, so a re-connect for
	// the same (wallet, host) replaces the entry rather than erroring.
	reg := NewRegistry(storage.NewMemStore())

	first := newTestSession(t, "w1", "https://dapp.example/", "client-1")
	require.NoError(t, reg.Put(first))

	second := newTestSession(t, "w1", "https://dapp.example/", "client-1b")
	require.NoError(t, reg.Put(second))

	assert.Equal(t, 1, reg.Len())
	got, err := reg.Get("w1", "https://dapp.example/")
	require.NoError(t, err)
	assert.Equal(t, "client-1b", got.ClientID)
}

func TestSetPushEnabled(t *testing.T) {
	store := storage.NewMemStore()
	reg := NewRegistry(store)

	s := newTestSession(t, "w1", "https://dapp.example/", "client-1")
	require.NoError(t, reg.Put(s))

	events, cancel := reg.Watch()
	defer cancel()
	<-events // initial snapshot

	// Same value: complete no-op.
	before, err := store.Get("app:w1|dapp.example")
	require.NoError(t, err)

	changed, err := reg.SetPushEnabled("w1", "https://dapp.example/", false)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := store.Get("app:w1|dapp.example")
	require.NoError(t, err)
	assert.Equal(t, before, after, "no-op must not rewrite storage")

	select {
	case <-events:
		t.Fatal("no-op SetPushEnabled must not fan out")
	case <-time.After(50 * time.Millisecond):
	}

	// Changed value: persisted and fanned out.
	changed, err = reg.SetPushEnabled("w1", "https://dapp.example/", true)
	require.NoError(t, err)
	assert.True(t, changed)

	select {
	case snapshot := <-events:
		require.Len(t, snapshot, 1)
		assert.True(t, snapshot[0].PushEnabled)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after SetPushEnabled change")
	}

	got, err := reg.Get("w1", "https://dapp.example/")
	require.NoError(t, err)
	assert.True(t, got.PushEnabled)

	// Missing session is a lookup miss, not a crash.
	_, err = reg.SetPushEnabled("w9", "https://dapp.example/", true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWatchDeliversCurrentSnapshotFirst(t *testing.T) {
	reg := NewRegistry(storage.NewMemStore())
	require.NoError(t, reg.Put(newTestSession(t, "w1", "https://dapp.example/", "client-1")))

	events, cancel := reg.Watch()
	defer cancel()

	select {
	case snapshot := <-events:
		require.Len(t, snapshot, 1)
		assert.Equal(t, "client-1", snapshot[0].ClientID)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate snapshot on subscribe")
	}
}

func TestLoadSkipsCorruptRecords(t *testing.T) {
	store := storage.NewMemStore()

	good := newTestSession(t, "w1", "https://dapp.example/", "client-1")
	reg := NewRegistry(store)
	require.NoError(t, reg.Put(good))

	require.NoError(t, store.Put("app:w1|broken.example", []byte("{not json")))

	reloaded := NewRegistry(store)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, 1, reloaded.Len())
	_, err := reloaded.Get("w1", "https://dapp.example/")
	assert.NoError(t, err)
}

func TestListByWalletStableOrder(t *testing.T) {
	reg := NewRegistry(storage.NewMemStore())

	require.NoError(t, reg.Put(newTestSession(t, "w1", "https://a.example/", "client-a")))
	require.NoError(t, reg.Put(newTestSession(t, "w1", "https://b.example/", "client-b")))
	require.NoError(t, reg.Put(newTestSession(t, "w2", "https://c.example/", "client-c")))

	list := reg.ListByWallet("w1")
	require.Len(t, list, 2)
	assert.Equal(t, "client-a", list[0].ClientID)
	assert.Equal(t, "client-b", list[1].ClientID)
}
