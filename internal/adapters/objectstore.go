package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/codecache"
)

// HTTPObjectStore implements internal/codecache.ObjectStore over a
// plain HTTP GET against an object-store endpoint (e.g. a signed S3 /
// GCS URL prefix, or an internal blob service fronted by HTTP) per
// spec.md §4.6. No object-storage SDK is wired here: the pack carries
// none, and a GET-by-key interface is all the Code Cache needs.
type HTTPObjectStore struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewHTTPObjectStore builds an HTTPObjectStore that resolves key under
// baseURL (e.g. "https://storage.example.com/app-bundles").
func NewHTTPObjectStore(baseURL string, log zerolog.Logger) *HTTPObjectStore {
	return &HTTPObjectStore{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Get implements internal/codecache.ObjectStore.
func (o *HTTPObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	url := o.baseURL + "/" + strings.TrimLeft(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("adapters: build object store request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adapters: fetch object %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, codecache.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adapters: object store status %d for %s", resp.StatusCode, key)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("adapters: read object %s: %w", key, err)
	}
	return data, nil
}
