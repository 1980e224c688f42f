package tonconnect

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonkit/tonconnect/crypto"
	"github.com/tonkit/tonconnect/proof"
	"github.com/tonkit/tonconnect/session"
)

// Reply item kinds understood by this wallet. Unknown kinds requested by
// a dApp are skipped for forward compatibility.
const (
	ItemTonAddr  = "ton_addr"
	ItemTonProof = "ton_proof"
)

// TON network identifiers as carried in the ton_addr reply item.
const (
	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

// RequestItem is one entry of a dApp's connect request.
type RequestItem struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

// ReplyItem is the closed union of connect reply items.
type ReplyItem interface {
	replyItem()
}

// AddressItem is the ton_addr reply item.
type AddressItem struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	Network         string `json:"network"`
	WalletStateInit string `json:"walletStateInit"`
	PublicKey       string `json:"publicKey"`
}

func (AddressItem) replyItem() {}

// ProofItem is the ton_proof reply item.
type ProofItem struct {
	Name  string       `json:"name"`
	Proof *proof.Proof `json:"proof"`
}

func (ProofItem) replyItem() {}

// ConnectReply is the payload returned to the dApp after a successful
// connect, with items in the exact order they were requested.
type ConnectReply struct {
	Items []ReplyItem `json:"items"`
}

// Connect establishes a new session with a dApp. Call it only after the
// user has approved the connection request.
//
// It generates a fresh session key pair, persists the session, builds
// the reply items in request order, delivers the encrypted reply over
// the bridge, and best-effort subscribes for push when a token is given.
func (c *Client) Connect(ctx context.Context, wallet *Wallet, seed [32]byte, manifest *session.Manifest, clientID string, items []RequestItem, pushToken string) (*ConnectReply, error) {
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	s := &session.Session{
		OriginURL:   manifest.URL,
		WalletID:    wallet.ID,
		AccountID:   wallet.AccountID,
		Testnet:     wallet.Testnet,
		ClientID:    clientID,
		KeyPair:     keyPair,
		PushEnabled: pushToken != "",
		Manifest:    manifest,
		CreatedAt:   time.Now(),
	}
	if err := c.registry.Put(s); err != nil {
		return nil, err
	}

	reply, err := c.buildReplyItems(wallet, seed, manifest, items)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	if err := c.Send(ctx, s, payload); err != nil {
		return nil, err
	}

	if pushToken != "" {
		// Best effort: a failed subscription never fails the connect.
		if err := c.SubscribePush(ctx, s, pushToken); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Connect",
				"host":     s.Host(),
				"error":    err.Error(),
			}).Warn("Push subscription failed during connect")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Connect",
		"wallet_id": wallet.ID,
		"host":      s.Host(),
		"items":     len(reply.Items),
	}).Info("Session established")

	return reply, nil
}

// AutoConnect silently reconnects a previously trusted dApp. It rebuilds
// the address item locally: no session mutation, no proof, no network
// traffic.
func (c *Client) AutoConnect(wallet *Wallet) (*ConnectReply, error) {
	return &ConnectReply{Items: []ReplyItem{c.addressItem(wallet)}}, nil
}

// Disconnect removes the session and emits a disconnect event.
// Idempotent: disconnecting an already absent session is a no-op.
func (c *Client) Disconnect(ctx context.Context, s *session.Session) error {
	if err := c.registry.Delete(s.WalletID, s.OriginURL); err != nil {
		return err
	}
	c.emit(Event{Method: MethodDisconnect, Session: s})
	return nil
}

// buildReplyItems assembles reply items in the requested order. Unknown
// item kinds are skipped.
func (c *Client) buildReplyItems(wallet *Wallet, seed [32]byte, manifest *session.Manifest, items []RequestItem) (*ConnectReply, error) {
	reply := &ConnectReply{Items: make([]ReplyItem, 0, len(items))}

	for _, item := range items {
		switch item.Name {
		case ItemTonAddr:
			reply.Items = append(reply.Items, c.addressItem(wallet))

		case ItemTonProof:
			proofItem, err := c.proofItem(wallet, seed, manifest, item.Payload)
			if err != nil {
				return nil, err
			}
			reply.Items = append(reply.Items, proofItem)

		default:
			logrus.WithFields(logrus.Fields{
				"function": "buildReplyItems",
				"item":     item.Name,
			}).Debug("Skipping unknown reply item kind")
		}
	}
	return reply, nil
}

func (c *Client) addressItem(wallet *Wallet) AddressItem {
	network := NetworkMainnet
	if wallet.Testnet {
		network = NetworkTestnet
	}
	return AddressItem{
		Name:            ItemTonAddr,
		Address:         wallet.AccountID,
		Network:         network,
		WalletStateInit: wallet.StateInitBase64,
		PublicKey:       wallet.PublicKeyHex(),
	}
}

func (c *Client) proofItem(wallet *Wallet, seed [32]byte, manifest *session.Manifest, payload string) (ProofItem, error) {
	addr, err := proof.ParseRawAddress(wallet.AccountID)
	if err != nil {
		return ProofItem{}, err
	}
	domain, err := proof.DomainFromURL(manifest.URL)
	if err != nil {
		return ProofItem{}, err
	}

	p, err := proof.Build(addr, seed, payload, domain, wallet.StateInitBase64)
	if err != nil {
		return ProofItem{}, err
	}
	return ProofItem{Name: ItemTonProof, Proof: p}, nil
}
