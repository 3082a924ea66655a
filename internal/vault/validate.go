package vault

import (
	"net"
	"regexp"
	"strings"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9])?)*\.?$`)

// ValidateSpec rejects malformed input before any I/O. requireCredential is
// true on create; on update an empty credential keeps the stored one.
func ValidateSpec(spec models.EndpointSpec, requireCredential bool) error {
	if strings.TrimSpace(spec.Name) == "" {
		return models.NewValidationError("name", "is required")
	}

	if err := validateHost(spec.Host); err != nil {
		return err
	}

	if spec.Port < 1 || spec.Port > 65535 {
		return models.NewValidationError("port", "must be between 1 and 65535")
	}

	if strings.TrimSpace(spec.DatabaseName) == "" {
		return models.NewValidationError("database_name", "is required")
	}

	if strings.TrimSpace(spec.Username) == "" {
		return models.NewValidationError("username", "is required")
	}

	if !spec.SSLMode.Valid() {
		return models.NewValidationError("ssl_mode", "must be require, prefer or disable")
	}

	if requireCredential && spec.Credential == "" {
		return models.NewValidationError("credential", "is required")
	}

	return nil
}

func validateHost(host string) error {
	if host == "" {
		return models.NewValidationError("host", "is required")
	}
	if len(host) > 253 {
		return models.NewValidationError("host", "exceeds 253 characters")
	}
	if strings.ContainsAny(host, " \t\r\n/?#@") || strings.Contains(host, "://") {
		return models.NewValidationError("host", "must be a bare host name or IP address")
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) {
		return models.NewValidationError("host", "is not a valid host name")
	}
	return nil
}
