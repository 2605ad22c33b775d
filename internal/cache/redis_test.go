package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The encode/decode helpers are exercised directly rather than through a
// live Lookup call: the package has no in-repo fake for redis.UniversalClient
// and the corpus doesn't carry a redis mocking library, so round-tripping
// the cache entry format is what's left to verify without dialing a real
// Redis instance.
func TestCacheEntry_RoundTripsFoundAndCode(t *testing.T) {
	encoded := encodeCacheEntry("560123", true)
	code, found, err := decodeCacheEntry(encoded)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "560123", code)
}

func TestCacheEntry_RoundTripsNegativeLookup(t *testing.T) {
	encoded := encodeCacheEntry("", false)
	code, found, err := decodeCacheEntry(encoded)
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, code)
}

func TestCacheEntry_DecodeMalformedReturnsMiss(t *testing.T) {
	code, found, err := decodeCacheEntry("garbage")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, code)
}
