package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEscrowServiceDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "escrow-service")
	t.Setenv("REFEREE_ADDRESS", "0x00000000000000000000000000000000000000a0")

	cfg := Load()
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.Equal(t, "escrow_transitions", cfg.TopicEscrowTransitions)
	assert.Equal(t, "postgres", cfg.EscrowStore)
	assert.Equal(t, 30*time.Second, cfg.BetCacheTTL)
	assert.Equal(t, "0x00000000000000000000000000000000000000a0", cfg.RefereeAddress)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "wallet-service")
	t.Setenv("HTTP_PORT_WALLET", "18082")
	t.Setenv("BET_CACHE_TTL", "5s")
	t.Setenv("ESCROW_STORE", "memory")

	cfg := Load()
	assert.Equal(t, "18082", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.BetCacheTTL)
	assert.Equal(t, "memory", cfg.EscrowStore)
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("BET_CACHE_TTL", "soon")
	assert.Equal(t, time.Minute, getDuration("BET_CACHE_TTL", time.Minute))
}
