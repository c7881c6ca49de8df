package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VerseRisk/internal/event"
)

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats:
  url: nats://queue:4222
risk:
  keeper_reward_bps: 12
oracle:
  authorities:
    polymarket: `+hex.EncodeToString(make([]byte, 32))+`
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://queue:4222", cfg.NATS.URL)
	assert.Equal(t, int64(12), cfg.Risk.KeeperRewardBps)
	// Untouched sections keep their defaults.
	assert.Equal(t, int64(1_100_000), cfg.Risk.WarningThreshold)
	assert.Equal(t, 50, cfg.Core.PersistBatchSize)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  url: nats://file:4222\n"), 0o644))

	t.Setenv("VERSE_NATS_URL", "nats://env:4222")
	t.Setenv("VERSE_PERSIST_BATCH_SIZE", "200")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, 200, cfg.Core.PersistBatchSize)
}

func TestAuthorityKeys(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := Default()
	cfg.Oracle.Authorities = map[string]string{"kalshi": hex.EncodeToString(pub)}

	keys, err := cfg.AuthorityKeys()
	require.NoError(t, err)
	assert.Equal(t, pub, keys[event.SourceKalshi])

	cfg.Oracle.Authorities = map[string]string{"bloomberg": hex.EncodeToString(pub)}
	_, err = cfg.AuthorityKeys()
	assert.Error(t, err)

	cfg.Oracle.Authorities = map[string]string{"kalshi": "zz"}
	_, err = cfg.AuthorityKeys()
	assert.Error(t, err)
}

func TestSignerKey(t *testing.T) {
	cfg := Default()

	key, err := cfg.SignerKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	cfg.Venues.SignerSeed = hex.EncodeToString(seed)
	key, err = cfg.SignerKey()
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)

	cfg.Venues.SignerSeed = "abcd"
	_, err = cfg.SignerKey()
	assert.Error(t, err)
}
