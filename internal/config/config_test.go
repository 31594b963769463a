package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymrank/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, domain.RankingModeDOTS, cfg.Leaderboard.Mode)
	assert.Equal(t, 50, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, 10, cfg.Leaderboard.EloTopN)
	assert.Equal(t, int64(50<<20), cfg.Media.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.True(t, cfg.Reconcile.Enabled)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
leaderboard:
  mode: elo_simple
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, domain.RankingModeEloSimple, cfg.Leaderboard.Mode)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("GYMRANK_DB_PASSWORD", "s3cret")
	path := writeConfig(t, `
postgres:
  password: ${GYMRANK_DB_PASSWORD}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `
leaderboard:
  mode: wilks
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: 5432, User: "gym", Password: "pw", Database: "gymrank",
	}
	assert.Equal(t, "postgres://gym:pw@db:5432/gymrank?sslmode=disable", cfg.ConnectionString())
}
