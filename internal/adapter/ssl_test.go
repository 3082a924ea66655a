package adapter

import (
	"testing"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSSLPolicy_Resolve(t *testing.T) {
	policy := NewSSLPolicy(DefaultLocalAliases)

	tests := []struct {
		name     string
		host     string
		mode     models.SSLMode
		expected models.EffectiveSSL
	}{
		{"localhost auto", "localhost", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"localhost uppercase", "LocalHost", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"loopback ipv4", "127.0.0.1", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"loopback ipv4 outside alias set", "127.0.0.5", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"loopback ipv6 bracketed", "[::1]", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"compose service name", "postgres", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"remote host", "db.example.com", models.SSLModeAuto, models.EffectiveSSLRequired},
		{"alias as substring is not local", "postgres.example.com", models.SSLModeAuto, models.EffectiveSSLRequired},
		{"explicit disable on remote", "db.example.com", models.SSLModeDisable, models.EffectiveSSLDisabled},
		{"explicit require on local", "localhost", models.SSLModeRequire, models.EffectiveSSLRequired},
		{"explicit prefer", "db.example.com", models.SSLModePrefer, models.EffectiveSSLPreferred},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Resolve(tt.host, tt.mode))
		})
	}
}

func TestSSLPolicy_CustomAliases(t *testing.T) {
	policy := NewSSLPolicy([]string{" db-internal ", ""})

	assert.Equal(t, models.EffectiveSSLDisabled, policy.Resolve("db-internal", models.SSLModeAuto))
	assert.Equal(t, models.EffectiveSSLRequired, policy.Resolve("postgres", models.SSLModeAuto))
	// loopback is always local
	assert.Equal(t, models.EffectiveSSLDisabled, policy.Resolve("127.0.0.1", models.SSLModeAuto))
}
