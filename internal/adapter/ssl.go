package adapter

import (
	"net"
	"strings"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

// DefaultLocalAliases are host names treated as local development targets.
var DefaultLocalAliases = []string{"localhost", "127.0.0.1", "::1", "postgres"}

// SSLPolicy resolves an endpoint's requested SSL mode into the mode actually
// used. In auto mode it trusts the host name text, not network topology:
// an exact alias match or a loopback IP disables TLS, anything else requires
// it. Operators override per endpoint with an explicit ssl_mode, or replace
// the alias set via configuration.
type SSLPolicy struct {
	aliases map[string]struct{}
}

func NewSSLPolicy(aliases []string) *SSLPolicy {
	p := &SSLPolicy{aliases: make(map[string]struct{}, len(aliases))}
	for _, a := range aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			p.aliases[a] = struct{}{}
		}
	}
	return p
}

func (p *SSLPolicy) Resolve(host string, mode models.SSLMode) models.EffectiveSSL {
	switch mode {
	case models.SSLModeDisable:
		return models.EffectiveSSLDisabled
	case models.SSLModeRequire:
		return models.EffectiveSSLRequired
	case models.SSLModePrefer:
		return models.EffectiveSSLPreferred
	}

	if p.IsLocal(host) {
		return models.EffectiveSSLDisabled
	}
	return models.EffectiveSSLRequired
}

func (p *SSLPolicy) IsLocal(host string) bool {
	h := strings.ToLower(strings.Trim(strings.TrimSpace(host), "[]"))
	if _, ok := p.aliases[h]; ok {
		return true
	}
	if ip := net.ParseIP(h); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}
