package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "SUPABASE_URL_HOST", "SUPABASE_URL_DOCKER", "SUPABASE_URL")
	t.Setenv("DISABLE_CONFIG_OVERLAY", "1")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDatabaseURLPrecedence(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "SUPABASE_URL_HOST", "SUPABASE_URL_DOCKER", "SUPABASE_URL")
	t.Setenv("DISABLE_CONFIG_OVERLAY", "1")
	t.Setenv("SUPABASE_URL", "postgres://legacy-plain")
	t.Setenv("SUPABASE_URL_DOCKER", "postgres://legacy-docker")
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://legacy-docker", c.DatabaseURL)

	t.Setenv("DATABASE_URL", "postgres://canonical")
	c, err = Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://canonical", c.DatabaseURL)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "EXTRACTION_CLAIM_BATCH_SIZE", "HARD_VALIDATE_MODE")
	t.Setenv("DISABLE_CONFIG_OVERLAY", "1")
	t.Setenv("DATABASE_URL", "postgres://x")
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10, c.Extraction.ClaimBatchSize)
	require.Equal(t, "report", c.HardValidateMode)
	require.Equal(t, 3, c.Extraction.MaxAttempts)
}

func TestLoadRejectsBadHardValidateMode(t *testing.T) {
	t.Setenv("DISABLE_CONFIG_OVERLAY", "1")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("HARD_VALIDATE_MODE", "bogus")
	_, err := Load()
	require.Error(t, err)
}
