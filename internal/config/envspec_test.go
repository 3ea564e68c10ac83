package config_test

import (
	"os"
	"path/filepath"
	"testing"

	cfg "github.com/hashlocked/swapd/internal/config"
	"github.com/stretchr/testify/require"
)

func TestEnvSpecsCoverAllVariables(t *testing.T) {
	specs := cfg.EnvSpecs()
	require.NotEmpty(t, specs)

	seen := map[string]bool{}
	for _, s := range specs {
		require.NotEmpty(t, s.Name)
		require.Equal(t, "SWAPD_"+s.Name, s.FullName)
		require.NotEmpty(t, s.Description, "missing envInfo for %s", s.Name)
		require.False(t, seen[s.Name], "duplicate spec for %s", s.Name)
		seen[s.Name] = true
	}

	require.True(t, seen["DATADIR"])
	require.True(t, seen["SAFETY_MARGIN"])
	require.True(t, seen["EVM_RPC_URL"])
	require.True(t, seen["UTXO_API_URL"])
}

func TestLoadConfigDefaults(t *testing.T) {
	datadir := filepath.Join(t.TempDir(), "swapd-test")
	t.Setenv("SWAPD_DATADIR", datadir)
	t.Setenv("SWAPD_CHAIN_MODE", "simulator")

	c, err := cfg.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, datadir, c.Datadir)
	require.Equal(t, "badger", c.DbType)
	require.Equal(t, uint32(7100), c.HTTPPort)
	require.Equal(t, uint32(3600), c.SafetyMargin)
	require.True(t, c.IsSimulator())

	info, err := os.Stat(datadir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLoadConfigValidation(t *testing.T) {
	datadir := filepath.Join(t.TempDir(), "swapd-test")
	t.Setenv("SWAPD_DATADIR", datadir)

	t.Run("live mode requires rpc endpoints", func(t *testing.T) {
		t.Setenv("SWAPD_CHAIN_MODE", "live")
		_, err := cfg.LoadConfig()
		require.Error(t, err)
	})

	t.Run("unknown chain mode", func(t *testing.T) {
		t.Setenv("SWAPD_CHAIN_MODE", "dryrun")
		_, err := cfg.LoadConfig()
		require.Error(t, err)
	})

	t.Run("timelock below safety margin", func(t *testing.T) {
		t.Setenv("SWAPD_CHAIN_MODE", "simulator")
		t.Setenv("SWAPD_MIN_TIMELOCK", "600")
		_, err := cfg.LoadConfig()
		require.Error(t, err)
	})
}
