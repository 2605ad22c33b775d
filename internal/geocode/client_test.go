package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/config"
)

func TestClient_LookupReturnsPostalCodeOnSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "/geocode", r.URL.Path)
		b, _ := json.Marshal(geocodeResponse{PostalCode: "560123", Found: true})
		w.Write(b)
	}))
	defer ts.Close()

	c := New(config.GeocoderConfig{Enabled: true, BaseURL: ts.URL, APIKey: "secret"})
	code, found, err := c.Lookup(context.Background(), "123 Main St")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "560123", code)
}

func TestClient_LookupReturnsNotFoundWithoutError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(geocodeResponse{Found: false})
		w.Write(b)
	}))
	defer ts.Close()

	c := New(config.GeocoderConfig{Enabled: true, BaseURL: ts.URL})
	code, found, err := c.Lookup(context.Background(), "nowhere")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, code)
}

func TestClient_LookupSkipsCallWhenAddressEmpty(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	c := New(config.GeocoderConfig{Enabled: true, BaseURL: ts.URL})
	code, found, err := c.Lookup(context.Background(), "   ")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, code)
	require.Zero(t, calls)
}

func TestClient_LookupRetriesOnServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		b, _ := json.Marshal(geocodeResponse{PostalCode: "098765", Found: true})
		w.Write(b)
	}))
	defer ts.Close()

	c := New(config.GeocoderConfig{Enabled: true, BaseURL: ts.URL})
	code, found, err := c.Lookup(context.Background(), "retry me")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "098765", code)
	require.Equal(t, 2, attempts)
}

func TestClient_LookupReturnsErrorWhenAttemptsExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(config.GeocoderConfig{Enabled: true, BaseURL: ts.URL})
	_, found, err := c.Lookup(context.Background(), "always fails")
	require.Error(t, err)
	require.False(t, found)
}
