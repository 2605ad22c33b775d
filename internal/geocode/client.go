// Package geocode implements the optional external geocoder fallback
// enrich.FillPostalCodes consults when a raw message names an address but
// no explicit 6-digit postal code.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutordex/core/internal/config"
	"github.com/tutordex/core/internal/retry"
)

// Client resolves a free-text address to a best-effort postal code over
// HTTP, bounded by a small retry budget shared with the rest of the
// pipeline's transient-failure handling.
type Client struct {
	httpClient *http.Client
	backoff    retry.Backoff
	baseURL    string
	apiKey     string
}

// New builds a Client from GeocoderConfig. Callers should check
// cfg.Enabled before wiring this in; New itself does not refuse to build a
// client for a disabled config.
func New(cfg config.GeocoderConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		backoff:    retry.New(200*time.Millisecond, 2*time.Second),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

type geocodeResponse struct {
	PostalCode string `json:"postal_code"`
	Found      bool   `json:"found"`
}

// Lookup implements enrich.Geocoder.
func (c *Client) Lookup(ctx context.Context, address string) (string, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" || c.baseURL == "" {
		return "", false, nil
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		code, found, err := c.call(ctx, address)
		if err == nil {
			return code, found, nil
		}
		lastErr = err
		wait := c.backoff.Next(attempt)
		log.Warn().Str("address", address).Int("attempt", attempt).Dur("wait", wait).
			Err(err).Msg("geocode: retrying after transient failure")
		if sleepErr := retry.Sleep(ctx, wait); sleepErr != nil {
			return "", false, sleepErr
		}
	}
	return "", false, lastErr
}

func (c *Client) call(ctx context.Context, address string) (string, bool, error) {
	url := fmt.Sprintf("%s/geocode?address=%s", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("geocode: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("geocode: decode response: %w", err)
	}
	return out.PostalCode, out.Found, nil
}
