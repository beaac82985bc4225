package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, ":9090", cfg.OpsAddress)
	require.Equal(t, 300, cfg.Snapshot.IntervalSeconds)
	require.Equal(t, 10, cfg.Snapshot.Retention)
	require.Equal(t, 30, cfg.Transactions.TimeoutSeconds)
	require.Equal(t, 5, cfg.Rake.DefaultPercentage)

	// Reload round-trips the persisted defaults.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAdress = \":1234\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys")
	require.ErrorContains(t, err, "RPCAdress")
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
RPCAddress = ":7000"
DataDir = "/tmp/economy"

[Snapshot]
IntervalSeconds = 60
Retention = 3
StrictRecovery = true

[RPC]
AuthToken = "secret"
RateLimitPerSecond = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.RPCAddress)
	require.Equal(t, "/tmp/economy", cfg.DataDir)
	require.Equal(t, 60, cfg.Snapshot.IntervalSeconds)
	require.Equal(t, 3, cfg.Snapshot.Retention)
	require.True(t, cfg.Snapshot.StrictRecovery)
	require.Equal(t, "secret", cfg.RPC.AuthToken)
	require.Equal(t, 5, cfg.RPC.RateLimitPerSecond)
	// Untouched sections still pick up defaults.
	require.Equal(t, ":9090", cfg.OpsAddress)
	require.Equal(t, 100, cfg.RPC.RateBurst)
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"rake percentage", func(c *Config) { c.Rake.DefaultPercentage = 101 }, "DefaultPercentage"},
		{"negative cap", func(c *Config) { c.Rake.DefaultCap = -1 }, "DefaultCap"},
		{"both auth modes", func(c *Config) { c.RPC.AuthToken = "a"; c.RPC.JWTSecret = "b" }, "not both"},
		{"negative rotation", func(c *Config) { c.Log.MaxSizeMB = -1 }, "rotation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.ErrorContains(t, err, tc.message)
		})
	}
}

func TestLoadBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	body := `
players:
  - id: plr_alice
    balance: 10000
  - id: plr_bob
    balance: 5000
clubs:
  - name: Riverside
    owner: plr_alice
    rakePercentage: 5
    rakeCap: 50
    members:
      - player: plr_bob
        role: PLAYER
    tables:
      - name: Main
        smallBlind: 5
        bigBlind: 10
        minBuyIn: 200
        maxBuyIn: 2000
        maxSeats: 6
        minPlayers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	seed, err := LoadBootstrap(path)
	require.NoError(t, err)
	require.Len(t, seed.Players, 2)
	require.Len(t, seed.Clubs, 1)
	require.Equal(t, "plr_alice", seed.Clubs[0].OwnerID)
	require.Len(t, seed.Clubs[0].Tables, 1)
}

func TestLoadBootstrapRejectsBadSeeds(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{
			"unknown key",
			"players:\n  - id: plr_a\n    chips: 5\n",
			"field chips not found",
		},
		{
			"owner not seeded",
			"players:\n  - id: plr_a\n    balance: 10\nclubs:\n  - name: X\n    owner: plr_ghost\n",
			"not in players",
		},
		{
			"bad blinds",
			"players:\n  - id: plr_a\n    balance: 10\nclubs:\n  - name: X\n    owner: plr_a\n    tables:\n      - name: T\n        smallBlind: 10\n        bigBlind: 5\n        minBuyIn: 100\n        maxSeats: 6\n",
			"blinds",
		},
		{
			"duplicate player",
			"players:\n  - id: plr_a\n    balance: 10\n  - id: plr_a\n    balance: 20\n",
			"duplicate id",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))
			_, err := LoadBootstrap(path)
			require.ErrorContains(t, err, tc.message)
		})
	}
}
