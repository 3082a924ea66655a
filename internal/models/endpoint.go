package models

import "time"

// SSLMode is the operator's requested TLS behaviour for an endpoint.
// The empty value means "auto": resolved from the host by the SSL policy.
type SSLMode string

const (
	SSLModeAuto    SSLMode = ""
	SSLModeRequire SSLMode = "require"
	SSLModePrefer  SSLMode = "prefer"
	SSLModeDisable SSLMode = "disable"
)

func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeAuto, SSLModeRequire, SSLModePrefer, SSLModeDisable:
		return true
	}
	return false
}

// Endpoint is one registered remote PostgreSQL target.
// It never carries a plaintext credential.
type Endpoint struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	DatabaseName  string    `json:"database_name"`
	Username      string    `json:"username"`
	SSLMode       SSLMode   `json:"ssl_mode"`
	Region        string    `json:"region,omitempty"`
	CloudProvider string    `json:"cloud_provider,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// At-rest credential material
	CredentialHash      string `json:"-"`
	CredentialSalt      string `json:"-"`
	EncryptedCredential string `json:"-"`
}

// EndpointSpec is the operator input for create and update.
type EndpointSpec struct {
	Name          string  `json:"name" yaml:"name"`
	Host          string  `json:"host" yaml:"host"`
	Port          int     `json:"port" yaml:"port"`
	DatabaseName  string  `json:"database_name" yaml:"database_name"`
	Username      string  `json:"username" yaml:"username"`
	Credential    string  `json:"credential" yaml:"credential"`
	SSLMode       SSLMode `json:"ssl_mode" yaml:"ssl_mode"`
	Region        string  `json:"region" yaml:"region"`
	CloudProvider string  `json:"cloud_provider" yaml:"cloud_provider"`
	IsActive      *bool   `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

type EndpointFilter struct {
	Region        string
	CloudProvider string
	ActiveOnly    bool
}

func (f EndpointFilter) Matches(e *Endpoint) bool {
	if f.ActiveOnly && !e.IsActive {
		return false
	}
	if f.Region != "" && f.Region != e.Region {
		return false
	}
	if f.CloudProvider != "" && f.CloudProvider != e.CloudProvider {
		return false
	}
	return true
}

// Clone returns a copy safe to hand out of a store.
func (e *Endpoint) Clone() *Endpoint {
	c := *e
	return &c
}
