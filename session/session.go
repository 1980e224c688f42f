// Package session implements the registry of authenticated wallet<->dApp
// channels.
//
// A Session records one TonConnect connection: which wallet account it
// belongs to, the dApp's origin and client identifier, and the
// wallet-side key pair of the encrypted channel. The Registry keeps the
// process-wide observable snapshot of all sessions in sync with durable
// storage.
package session

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/tonkit/tonconnect/crypto"
)

// Session represents one authenticated channel between a wallet account
// and a dApp origin. Sessions are treated as immutable values; updates
// replace the whole record.
type Session struct {
	// OriginURL is the dApp's canonical URL. Identity is by host, not
	// the full URL.
	OriginURL string

	// WalletID, AccountID and Testnet scope the session to exactly one
	// wallet.
	WalletID  string
	AccountID string
	Testnet   bool

	// ClientID is the opaque identifier supplied by the dApp side; it
	// carries the dApp's hex-encoded channel public key and correlates
	// inbound bridge events to this session.
	ClientID string

	// KeyPair is the wallet-side channel key pair, exclusively owned by
	// this session.
	KeyPair *crypto.KeyPair

	// PushEnabled reports whether push notifications are subscribed.
	PushEnabled bool

	// Manifest is the dApp-declared metadata, immutable once fetched.
	Manifest *Manifest

	// CreatedAt is when the session was established.
	CreatedAt time.Time
}

// Fingerprint returns the hex form of the session's public key, used for
// read-time deduplication and bridge addressing.
func (s *Session) Fingerprint() string {
	return s.KeyPair.PublicKeyHex()
}

// PeerPublicKey decodes the dApp's channel public key from the clientId.
func (s *Session) PeerPublicKey() ([crypto.KeySize]byte, error) {
	return crypto.DecodePeerKey(s.ClientID)
}

// Host returns the normalized host component of the session's origin.
func (s *Session) Host() string {
	return HostOf(s.OriginURL)
}

// WithPushEnabled returns a copy of the session with the flag changed.
func (s *Session) WithPushEnabled(enabled bool) *Session {
	clone := *s
	clone.PushEnabled = enabled
	return &clone
}

// HostOf extracts the lowercased host component of a URL, ignoring path
// and query. Returns "" when no host can be derived.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// record is the durable JSON form of a Session. Key material is stored
// hex-encoded; the encrypted store protects it at rest.
type record struct {
	URL         string    `json:"url"`
	WalletID    string    `json:"walletId"`
	AccountID   string    `json:"accountId"`
	Testnet     bool      `json:"testnet"`
	ClientID    string    `json:"clientId"`
	PublicKey   string    `json:"publicKey"`
	PrivateKey  string    `json:"privateKey"`
	PushEnabled bool      `json:"pushEnabled"`
	Manifest    *Manifest `json:"manifest,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		URL:         s.OriginURL,
		WalletID:    s.WalletID,
		AccountID:   s.AccountID,
		Testnet:     s.Testnet,
		ClientID:    s.ClientID,
		PublicKey:   s.KeyPair.PublicKeyHex(),
		PrivateKey:  s.KeyPair.PrivateKeyHex(),
		PushEnabled: s.PushEnabled,
		Manifest:    s.Manifest,
		CreatedAt:   s.CreatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Session) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	keyPair, err := crypto.FromHex(r.PublicKey, r.PrivateKey)
	if err != nil {
		return err
	}

	*s = Session{
		OriginURL:   r.URL,
		WalletID:    r.WalletID,
		AccountID:   r.AccountID,
		Testnet:     r.Testnet,
		ClientID:    r.ClientID,
		KeyPair:     keyPair,
		PushEnabled: r.PushEnabled,
		Manifest:    r.Manifest,
		CreatedAt:   r.CreatedAt,
	}
	return nil
}
