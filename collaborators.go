package tonconnect

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"

	"github.com/tonkit/tonconnect/session"
)

// Wallet carries the account data the protocol core needs from the
// wallet's key-management subsystem. AccountID is the raw-form contract
// address; StateInitBase64 is the serialized contract state-init.
type Wallet struct {
	ID              string
	AccountID       string
	Testnet         bool
	PublicKey       ed25519.PublicKey
	StateInitBase64 string
}

// PublicKeyHex returns the wallet's signing key in hex, as carried in
// the ton_addr reply item.
func (w *Wallet) PublicKeyHex() string {
	return hex.EncodeToString(w.PublicKey)
}

// AccountProvider supplies wallets and proof tokens from the wallet's
// account subsystem.
type AccountProvider interface {
	// GetWalletByID returns the wallet with the given id, or
	// (nil, nil) when unknown.
	GetWalletByID(ctx context.Context, id string) (*Wallet, error)

	// GetWalletByAccountID resolves a raw account address on the given
	// network, or (nil, nil) when unknown.
	GetWalletByAccountID(ctx context.Context, accountID string, testnet bool) (*Wallet, error)

	// RequestProofToken returns the wallet's proof token used to
	// authorize push subscriptions.
	RequestProofToken(ctx context.Context, walletID string) (string, error)
}

// Bridge delivers encrypted payloads to the dApp side of a session. The
// core treats delivery as fire-and-forget; errors propagate to the
// caller of the send operation.
type Bridge interface {
	// Deliver sends a base64 ciphertext addressed by the session's
	// public-key fingerprint and the dApp's clientId.
	Deliver(ctx context.Context, peerPublicKeyHex, clientID, base64Ciphertext string) error
}

// PushSubscription is one session's push-notification registration.
type PushSubscription struct {
	ProofToken    string
	AppURL        string
	AccountID     string
	FirebaseToken string
	SessionID     string
	Commercial    bool
	Silent        bool
}

// Pusher registers sessions for push notification delivery.
type Pusher interface {
	Subscribe(ctx context.Context, sub PushSubscription) error
}

// ManifestFetcher retrieves a dApp manifest over the network. The core
// caches results local-first, keyed by source URL.
type ManifestFetcher interface {
	Fetch(ctx context.Context, sourceURL string) (*session.Manifest, error)
}

// LegacySource exposes the one-time legacy state blob. Read returns
// (nil, nil) when no legacy state exists.
type LegacySource interface {
	Read(ctx context.Context) ([]byte, error)
}
