package tonconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tonkit/tonconnect/session"
)

// ErrManifestFetchFailed is returned by HTTPManifestFetcher when the
// manifest cannot be retrieved or parsed. Connect flows treat a fetch
// failure as an absent manifest, never as a crash.
var ErrManifestFetchFailed = errors.New("manifest fetch failed")

// HTTPManifestFetcher fetches dApp manifests from their well-known URL.
type HTTPManifestFetcher struct {
	client *http.Client
}

// NewHTTPManifestFetcher creates a fetcher with a bounded timeout.
func NewHTTPManifestFetcher() *HTTPManifestFetcher {
	return &HTTPManifestFetcher{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch implements ManifestFetcher.
func (f *HTTPManifestFetcher) Fetch(ctx context.Context, sourceURL string) (*session.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrManifestFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestFetchFailed, err)
	}

	var manifest session.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestFetchFailed, err)
	}
	return &manifest, nil
}
