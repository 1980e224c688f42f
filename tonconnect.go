// Package tonconnect implements the wallet side of the TonConnect
// protocol: per-dApp encrypted sessions, the connect/proof handshake,
// and the relay of request/response payloads over an untrusted bridge.
//
// The package orchestrates the session key lifecycle, authenticated
// encryption of every message, the registry of active dApp sessions, and
// the stream of inbound protocol events. Networking, key management and
// UI approval are collaborator interfaces supplied by the embedding
// wallet application.
//
// Example:
//
//	opts := tonconnect.NewOptions()
//	opts.Accounts = accounts
//	opts.Bridge = bridge
//	opts.Store = store
//
//	client, err := tonconnect.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	events, cancel := client.Events()
//	defer cancel()
//	for event := range events {
//	    fmt.Printf("%s from %s\n", event.Method, event.Session.Host())
//	}
package tonconnect

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tonkit/tonconnect/session"
	"github.com/tonkit/tonconnect/storage"
)

// Options configures a Client.
type Options struct {
	// Accounts supplies wallets and proof tokens. Required.
	Accounts AccountProvider

	// Bridge delivers encrypted payloads to dApps. Required.
	Bridge Bridge

	// Pusher registers push subscriptions. Optional; when nil, push
	// subscription requests are silently skipped.
	Pusher Pusher

	// Fetcher retrieves dApp manifests. Optional; when nil, GetManifest
	// serves cache hits only.
	Fetcher ManifestFetcher

	// Legacy exposes the one-time legacy state blob. Optional.
	Legacy LegacySource

	// Store is the durable key-value backend for sessions and the
	// manifest cache. Defaults to an in-memory store.
	Store storage.Store

	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		Store:       storage.NewMemStore(),
		EventBuffer: 16,
	}
}

// Client is the TonConnect protocol engine. It owns the session
// registry and the inbound event stream; all methods are safe for
// concurrent use.
type Client struct {
	opts      *Options
	accounts  AccountProvider
	bridge    Bridge
	pusher    Pusher
	fetcher   ManifestFetcher
	registry  *session.Registry
	manifests *session.ManifestCache

	// Event stream state.
	eventsMu    sync.Mutex
	subscribers map[string]chan Event
	lastEvent   *Event
	closed      bool
}

// New creates a Client, loads persisted sessions into the registry, and
// runs the one-time legacy migration when storage is empty and legacy
// state exists.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if opts.Accounts == nil {
		return nil, errors.New("tonconnect: Options.Accounts is required")
	}
	if opts.Bridge == nil {
		return nil, errors.New("tonconnect: Options.Bridge is required")
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemStore()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}

	c := &Client{
		opts:        opts,
		accounts:    opts.Accounts,
		bridge:      opts.Bridge,
		pusher:      opts.Pusher,
		fetcher:     opts.Fetcher,
		registry:    session.NewRegistry(opts.Store),
		manifests:   session.NewManifestCache(opts.Store),
		subscribers: make(map[string]chan Event),
	}

	if err := c.registry.Load(); err != nil {
		return nil, err
	}

	if c.registry.Len() == 0 && opts.Legacy != nil {
		migrated, err := c.migrateLegacyState(context.Background())
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "New",
				"error":    err.Error(),
			}).Warn("Legacy state migration failed")
		} else if migrated > 0 {
			logrus.WithFields(logrus.Fields{
				"function": "New",
				"migrated": migrated,
			}).Info("Migrated legacy sessions")
		}
	}

	return c, nil
}

// Registry exposes the session registry for UI consumption (listing and
// watching connected dApps).
func (c *Client) Registry() *session.Registry {
	return c.registry
}

// GetManifest returns the manifest for a source URL, local cache first.
// A failed remote fetch is reported as an absent manifest, not an error;
// the caller decides whether to retry.
func (c *Client) GetManifest(ctx context.Context, sourceURL string) (*session.Manifest, error) {
	cached, err := c.manifests.Get(sourceURL)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	if c.fetcher == nil {
		return nil, nil
	}

	manifest, err := c.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "GetManifest",
			"source_url": sourceURL,
			"error":      err.Error(),
		}).Warn("Manifest fetch failed")
		return nil, nil
	}

	if err := c.manifests.Set(sourceURL, manifest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "GetManifest",
			"source_url": sourceURL,
			"error":      err.Error(),
		}).Warn("Failed to cache manifest")
	}
	return manifest, nil
}

// SetPushEnabled flips the push flag of the session at (walletID,
// host(url)). A no-op when the value is unchanged or the session is
// absent.
func (c *Client) SetPushEnabled(walletID, url string, enabled bool) error {
	_, err := c.registry.SetPushEnabled(walletID, url, enabled)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil
	}
	return err
}

// Close tears down the event stream. The registry and store remain
// readable; Close only stops event delivery.
func (c *Client) Close() error {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	return nil
}
