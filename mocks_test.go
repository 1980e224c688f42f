package tonconnect

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonkit/tonconnect/crypto"
	"github.com/tonkit/tonconnect/session"
)

const testAccountID = "0:abc0000000000000000000000000000000000000000000000000000000000000"

// testWallet builds a wallet fixture plus the seed used for proof
// signing.
func testWallet(t *testing.T, id string, testnet bool) (*Wallet, [32]byte) {
	t.Helper()

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var seed [32]byte
	copy(seed[:], privateKey.Seed())

	return &Wallet{
		ID:              id,
		AccountID:       testAccountID,
		Testnet:         testnet,
		PublicKey:       publicKey,
		StateInitBase64: "te6cckEBAQEAAgAAAEysuc0=",
	}, seed
}

// testDApp is the dApp side of a session: its channel key pair doubles
// as the clientId.
type testDApp struct {
	keyPair *crypto.KeyPair
}

func newTestDApp(t *testing.T) *testDApp {
	t.Helper()
	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &testDApp{keyPair: keyPair}
}

func (d *testDApp) clientID() string {
	return d.keyPair.PublicKeyHex()
}

// open decrypts a bridge delivery addressed to this dApp.
func (d *testDApp) open(t *testing.T, walletPublicKeyHex, base64Ciphertext string) []byte {
	t.Helper()

	walletKey, err := crypto.DecodePeerKey(walletPublicKeyHex)
	require.NoError(t, err)
	sealed, err := crypto.DecodeTransport(base64Ciphertext)
	require.NoError(t, err)
	plaintext, err := crypto.Open(sealed, walletKey, d.keyPair)
	require.NoError(t, err)
	return plaintext
}

// seal encrypts a request as the dApp would before handing it to the
// bridge.
func (d *testDApp) seal(t *testing.T, s *session.Session, plaintext []byte) string {
	t.Helper()

	sealed, err := crypto.Seal(plaintext, s.KeyPair.Public, d.keyPair)
	require.NoError(t, err)
	return crypto.EncodeTransport(sealed)
}

type delivery struct {
	PeerPublicKeyHex string
	ClientID         string
	Payload          string
}

// mockBridge records deliveries.
type mockBridge struct {
	mu         sync.Mutex
	deliveries []delivery
	failWith   error
}

func (b *mockBridge) Deliver(_ context.Context, peerPublicKeyHex, clientID, base64Ciphertext string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.deliveries = append(b.deliveries, delivery{peerPublicKeyHex, clientID, base64Ciphertext})
	return nil
}

func (b *mockBridge) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.deliveries)
}

func (b *mockBridge) last() delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deliveries[len(b.deliveries)-1]
}

// mockAccounts serves a fixed set of wallets.
type mockAccounts struct {
	wallets    map[string]*Wallet
	proofToken string
}

func newMockAccounts(wallets ...*Wallet) *mockAccounts {
	m := &mockAccounts{wallets: make(map[string]*Wallet), proofToken: "proof-token"}
	for _, w := range wallets {
		m.wallets[w.ID] = w
	}
	return m
}

func (m *mockAccounts) GetWalletByID(_ context.Context, id string) (*Wallet, error) {
	return m.wallets[id], nil
}

func (m *mockAccounts) GetWalletByAccountID(_ context.Context, accountID string, testnet bool) (*Wallet, error) {
	for _, w := range m.wallets {
		if w.AccountID == accountID && w.Testnet == testnet {
			return w, nil
		}
	}
	return nil, nil
}

func (m *mockAccounts) RequestProofToken(_ context.Context, _ string) (string, error) {
	return m.proofToken, nil
}

// mockPusher records subscriptions and can fail per session.
type mockPusher struct {
	mu            sync.Mutex
	subscriptions []PushSubscription
	failFor       map[string]bool // keyed by SessionID
}

func (p *mockPusher) Subscribe(_ context.Context, sub PushSubscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[sub.SessionID] {
		return errors.New("push backend unavailable")
	}
	p.subscriptions = append(p.subscriptions, sub)
	return nil
}

func (p *mockPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscriptions)
}

// mockFetcher serves canned manifests.
type mockFetcher struct {
	mu        sync.Mutex
	manifests map[string]*session.Manifest
	fetches   int
	failWith  error
}

func (f *mockFetcher) Fetch(_ context.Context, sourceURL string) (*session.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.failWith != nil {
		return nil, f.failWith
	}
	m, ok := f.manifests[sourceURL]
	if !ok {
		return nil, errors.New("manifest not found")
	}
	return m, nil
}

func (f *mockFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// mockLegacy serves a fixed legacy blob.
type mockLegacy struct {
	blob []byte
}

func (l *mockLegacy) Read(_ context.Context) ([]byte, error) {
	return l.blob, nil
}

// newTestClient wires a Client and tears it down with the test.
func newTestClient(t *testing.T, opts *Options) *Client {
	t.Helper()

	client, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}
