package session

import (
	"encoding/json"
	"fmt"

	"github.com/tonkit/tonconnect/storage"
)

// Manifest is the dApp-declared static descriptor served from its
// well-known manifest URL. It is fetched once per session and immutable
// afterwards.
type Manifest struct {
	URL              string `json:"url"`
	Name             string `json:"name"`
	IconURL          string `json:"iconUrl"`
	TermsOfUseURL    string `json:"termsOfUseUrl,omitempty"`
	PrivacyPolicyURL string `json:"privacyPolicyUrl,omitempty"`
}

const manifestKeyPrefix = "manifest:"

// ManifestCache caches fetched manifests in durable storage keyed by
// source URL. The local copy always wins over a remote fetch.
type ManifestCache struct {
	store storage.Store
}

// NewManifestCache wraps a store with manifest record handling.
func NewManifestCache(store storage.Store) *ManifestCache {
	return &ManifestCache{store: store}
}

// Get returns the cached manifest for a source URL, or nil on a miss.
func (c *ManifestCache) Get(sourceURL string) (*Manifest, error) {
	data, err := c.store.Get(manifestKeyPrefix + sourceURL)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("corrupt cached manifest for %q: %w", sourceURL, err)
	}
	return &manifest, nil
}

// Set stores a fetched manifest under its source URL.
func (c *ManifestCache) Set(sourceURL string, manifest *Manifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	return c.store.Put(manifestKeyPrefix+sourceURL, data)
}
