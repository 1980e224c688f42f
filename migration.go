package tonconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonkit/tonconnect/crypto"
	"github.com/tonkit/tonconnect/session"
)

// Legacy state layout: per network, per wallet address, per client id,
// one connection record. Records are decoded individually so a single
// malformed entry never aborts the rest.
type legacyState struct {
	ConnectedApps map[string]map[string]map[string]json.RawMessage `json:"connectedApps"`
}

type legacyApp struct {
	URL                  string             `json:"url"`
	Name                 string             `json:"name"`
	Icon                 string             `json:"icon"`
	NotificationsEnabled bool               `json:"notificationsEnabled"`
	Connections          []legacyConnection `json:"connections"`
}

type legacyConnection struct {
	ClientSessionID string         `json:"clientSessionId"`
	SessionKeyPair  *legacyKeyPair `json:"sessionKeyPair"`
}

type legacyKeyPair struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// migrateLegacyState imports sessions from the legacy blob. Best effort:
// per-record failures are counted and skipped. Returns the number of
// sessions migrated.
func (c *Client) migrateLegacyState(ctx context.Context) (int, error) {
	blob, err := c.opts.Legacy.Read(ctx)
	if err != nil {
		return 0, err
	}
	if len(blob) == 0 {
		return 0, nil
	}

	var state legacyState
	if err := json.Unmarshal(blob, &state); err != nil {
		return 0, fmt.Errorf("malformed legacy state: %w", err)
	}

	migrated, skipped := 0, 0
	for network, byAddress := range state.ConnectedApps {
		var testnet bool
		switch network {
		case "mainnet":
			testnet = false
		case "testnet":
			testnet = true
		default:
			continue
		}

		for address, byClient := range byAddress {
			wallet, err := c.accounts.GetWalletByAccountID(ctx, address, testnet)
			if err != nil || wallet == nil {
				skipped += len(byClient)
				continue
			}

			for clientID, raw := range byClient {
				if err := c.migrateRecord(wallet, clientID, raw); err != nil {
					skipped++
					logrus.WithFields(logrus.Fields{
						"function": "migrateLegacyState",
						"network":  network,
						"error":    err.Error(),
					}).Debug("Skipping legacy connection record")
					continue
				}
				migrated++
			}
		}
	}

	if skipped > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "migrateLegacyState",
			"migrated": migrated,
			"skipped":  skipped,
		}).Warn("Legacy migration skipped some records")
	}
	return migrated, nil
}

// migrateRecord reconstructs one session from a legacy connection record.
func (c *Client) migrateRecord(wallet *Wallet, clientID string, raw json.RawMessage) error {
	var app legacyApp
	if err := json.Unmarshal(raw, &app); err != nil {
		return err
	}
	if app.URL == "" {
		return fmt.Errorf("record for client %s has no url", truncateID(clientID))
	}
	if len(app.Connections) == 0 {
		return fmt.Errorf("record for client %s has no connections", truncateID(clientID))
	}

	// The legacy format appends re-connections; the last one is current.
	connection := app.Connections[len(app.Connections)-1]

	var keyPair *crypto.KeyPair
	var err error
	if connection.SessionKeyPair != nil {
		keyPair, err = crypto.FromHex(connection.SessionKeyPair.PublicKey, connection.SessionKeyPair.SecretKey)
	} else {
		keyPair, err = crypto.GenerateKeyPair()
	}
	if err != nil {
		return err
	}

	sessionClientID := connection.ClientSessionID
	if sessionClientID == "" {
		sessionClientID = clientID
	}

	return c.registry.Put(&session.Session{
		OriginURL:   app.URL,
		WalletID:    wallet.ID,
		AccountID:   wallet.AccountID,
		Testnet:     wallet.Testnet,
		ClientID:    sessionClientID,
		KeyPair:     keyPair,
		PushEnabled: app.NotificationsEnabled,
		Manifest: &session.Manifest{
			URL:     app.URL,
			Name:    app.Name,
			IconURL: app.Icon,
		},
		CreatedAt: time.Now(),
	})
}
