package tonconnect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tonkit/tonconnect/crypto"
	"github.com/tonkit/tonconnect/session"
)

// Send authenticated-encrypts a plaintext payload under the session's
// key pair and delivers it over the bridge, addressed by the session's
// fingerprint and the dApp's clientId.
func (c *Client) Send(ctx context.Context, s *session.Session, payload []byte) error {
	peerKey, err := s.PeerPublicKey()
	if err != nil {
		return err
	}

	sealed, err := crypto.Seal(payload, peerKey, s.KeyPair)
	if err != nil {
		return err
	}

	return c.bridge.Deliver(ctx, s.Fingerprint(), s.ClientID, crypto.EncodeTransport(sealed))
}

// resultEnvelope is the wire shape of a successful RPC response.
type resultEnvelope struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

// errorEnvelope is the wire shape of a failed RPC response.
type errorEnvelope struct {
	ID    string    `json:"id"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendResult wraps a result in the {id, result} envelope and sends it.
func (c *Client) SendResult(ctx context.Context, requestID string, s *session.Session, result string) error {
	payload, err := json.Marshal(resultEnvelope{ID: requestID, Result: result})
	if err != nil {
		return err
	}
	return c.Send(ctx, s, payload)
}

// SendError wraps an error in the {id, error: {code, message}} envelope
// and sends it.
func (c *Client) SendError(ctx context.Context, requestID string, s *session.Session, code int, message string) error {
	payload, err := json.Marshal(errorEnvelope{ID: requestID, Error: errorBody{Code: code, Message: message}})
	if err != nil {
		return err
	}
	return c.Send(ctx, s, payload)
}

// SubscribePush registers one session for push delivery. A nil Pusher or
// an unknown wallet makes this a no-op.
func (c *Client) SubscribePush(ctx context.Context, s *session.Session, firebaseToken string) error {
	if c.pusher == nil {
		return nil
	}

	wallet, err := c.accounts.GetWalletByID(ctx, s.WalletID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return nil
	}

	proofToken, err := c.accounts.RequestProofToken(ctx, wallet.ID)
	if err != nil {
		return err
	}

	return c.pusher.Subscribe(ctx, PushSubscription{
		ProofToken:    proofToken,
		AppURL:        strings.TrimSuffix(s.OriginURL, "/"),
		AccountID:     wallet.AccountID,
		FirebaseToken: firebaseToken,
		SessionID:     s.ClientID,
		Commercial:    true,
		Silent:        false,
	})
}

// UpdatePushToken re-subscribes every session with a new token. Each
// session is handled independently; one failure never cancels the rest.
func (c *Client) UpdatePushToken(ctx context.Context, firebaseToken string) {
	sessions := c.registry.ListAll()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			if err := c.SubscribePush(ctx, s, firebaseToken); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "UpdatePushToken",
					"host":     s.Host(),
					"error":    err.Error(),
				}).Warn("Push re-subscription failed")
			}
		}(s)
	}
	wg.Wait()
}
