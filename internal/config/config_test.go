package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NGO_WALLET_SEED", "")
	t.Setenv("NGO_WALLET_ADDRESS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultXRPLURL, cfg.XRPLURL)
	assert.Equal(t, DefaultLedgerTimeout, cfg.LedgerTimeout)
	assert.False(t, cfg.LedgerEnabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithWallet(t *testing.T) {
	t.Setenv("NGO_WALLET_SEED", "snoPBrXtMeMyMHUVTgbuqAfg1SUTb")
	t.Setenv("NGO_WALLET_ADDRESS", "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LedgerEnabled())
}

func TestValidateRejectsBadSeed(t *testing.T) {
	cfg := &Config{
		NGOWalletSeed:    "not-a-seed",
		NGOWalletAddress: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
		XRPLURL:          DefaultXRPLURL,
		LedgerTimeout:    DefaultLedgerTimeout,
		FinishGrace:      DefaultFinishGrace,
		CancelBuffer:     DefaultCancelBuffer,
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresAddressWithSeed(t *testing.T) {
	cfg := &Config{
		NGOWalletSeed: "snoPBrXtMeMyMHUVTgbuqAfg1SUTb",
		XRPLURL:       DefaultXRPLURL,
		LedgerTimeout: DefaultLedgerTimeout,
		FinishGrace:   DefaultFinishGrace,
		CancelBuffer:  DefaultCancelBuffer,
	}
	assert.Error(t, cfg.Validate())
}

func TestEnvDurationOverride(t *testing.T) {
	t.Setenv("NGO_WALLET_SEED", "")
	t.Setenv("LEDGER_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.LedgerTimeout)
}
