package tonconnect

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tonkit/tonconnect/crypto"
	"github.com/tonkit/tonconnect/session"
)

// MethodDisconnect is the protocol method a dApp sends to tear down its
// session. The core handles it before forwarding the event.
const MethodDisconnect = "disconnect"

// Event is one inbound protocol event: the RPC method requested by the
// dApp and the session it originated from.
type Event struct {
	ID      string
	Method  string
	Params  json.RawMessage
	Session *session.Session
}

// Events subscribes to the inbound event stream. The stream is
// multicast: every subscriber sees every event in bridge-delivery order,
// and a late subscriber immediately receives the most recent event if
// one was already emitted. The cancel function removes the subscription
// and closes the channel.
func (c *Client) Events() (<-chan Event, func()) {
	ch := make(chan Event, c.opts.EventBuffer)
	id := uuid.NewString()

	c.eventsMu.Lock()
	if c.closed {
		c.eventsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[id] = ch
	if c.lastEvent != nil {
		ch <- *c.lastEvent
	}
	c.eventsMu.Unlock()

	cancel := func() {
		c.eventsMu.Lock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
		c.eventsMu.Unlock()
	}
	return ch, cancel
}

// emit fans an event out to every subscriber. Delivery order is
// preserved per subscriber; a subscriber with a full buffer is skipped
// so it cannot stall the rest.
func (c *Client) emit(event Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	if c.closed {
		return
	}
	c.lastEvent = &event

	for id, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			logrus.WithFields(logrus.Fields{
				"function":      "emit",
				"subscriber_id": id,
				"method":        event.Method,
			}).Warn("Dropping event for slow subscriber")
		}
	}
}

// bridgeMessage is the decrypted wire shape of an inbound dApp request.
// The id arrives as either a JSON number or string.
type bridgeMessage struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (m *bridgeMessage) requestID() string {
	if len(m.ID) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(m.ID, &asString); err == nil {
		return asString
	}
	var asNumber int64
	if err := json.Unmarshal(m.ID, &asNumber); err == nil {
		return strconv.FormatInt(asNumber, 10)
	}
	return string(m.ID)
}

// HandleBridgeMessage processes one inbound bridge delivery: resolve the
// session by the sender's clientId, decrypt, parse, apply the disconnect
// side effect, and forward the event to subscribers.
//
// A message from an unknown client is dropped silently ("not connected"
// is a steady state, not an error). A message that fails authentication
// is rejected with crypto.ErrDecryptionFailed.
func (c *Client) HandleBridgeMessage(fromClientID, base64Ciphertext string) error {
	s, err := c.registry.FindByClientID(fromClientID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "HandleBridgeMessage",
			"client_id": truncateID(fromClientID),
		}).Debug("Dropping bridge message from unknown client")
		return nil
	}

	sealed, err := crypto.DecodeTransport(base64Ciphertext)
	if err != nil {
		return err
	}
	peerKey, err := s.PeerPublicKey()
	if err != nil {
		return err
	}
	plaintext, err := crypto.Open(sealed, peerKey, s.KeyPair)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleBridgeMessage",
			"host":     s.Host(),
			"error":    err.Error(),
		}).Warn("Rejected unauthenticated bridge message")
		return err
	}

	var msg bridgeMessage
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return err
	}

	// The disconnect side effect lands before the event reaches
	// subscribers, so the registry is already consistent when they react.
	if msg.Method == MethodDisconnect {
		if err := c.registry.Delete(s.WalletID, s.OriginURL); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "HandleBridgeMessage",
				"host":     s.Host(),
				"error":    err.Error(),
			}).Warn("Failed to remove session on disconnect")
		}
	}

	c.emit(Event{
		ID:      msg.requestID(),
		Method:  msg.Method,
		Params:  msg.Params,
		Session: s,
	})
	return nil
}

// truncateID shortens opaque identifiers for log output.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16]
}
