// Package vault registers remote PostgreSQL endpoints and guards their
// credentials. A credential is stored twice: as a salted bcrypt hash for
// verification, and as an authenticated ciphertext that only RevealForProbe
// opens. Neither form ever leaves the package in an Endpoint view.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Vault struct {
	store  store.CredentialStore
	cipher *Cipher
	hasher *Hasher
	ssl    *adapter.SSLPolicy
	logger *zap.Logger
	now    func() time.Time
}

func New(credStore store.CredentialStore, cipher *Cipher, hasher *Hasher, ssl *adapter.SSLPolicy, logger *zap.Logger) *Vault {
	return &Vault{
		store:  credStore,
		cipher: cipher,
		hasher: hasher,
		ssl:    ssl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates spec, hashes and encrypts the credential and persists a
// new active endpoint. The returned view carries no credential material.
func (v *Vault) Create(ctx context.Context, spec models.EndpointSpec) (*models.Endpoint, error) {
	if err := ValidateSpec(spec, true); err != nil {
		return nil, err
	}

	now := v.now()
	endpoint := &models.Endpoint{
		ID:            uuid.NewString(),
		Name:          spec.Name,
		Host:          spec.Host,
		Port:          spec.Port,
		DatabaseName:  spec.DatabaseName,
		Username:      spec.Username,
		SSLMode:       spec.SSLMode,
		Region:        spec.Region,
		CloudProvider: spec.CloudProvider,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if spec.IsActive != nil {
		endpoint.IsActive = *spec.IsActive
	}

	if err := v.seal(endpoint, spec.Credential); err != nil {
		return nil, err
	}

	if err := v.store.Insert(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to store endpoint: %w", err)
	}

	v.logger.Info("Endpoint registered",
		zap.String("endpoint_id", endpoint.ID),
		zap.String("name", endpoint.Name),
		zap.String("region", endpoint.Region),
	)

	return redact(endpoint), nil
}

func (v *Vault) Get(ctx context.Context, id string) (*models.Endpoint, error) {
	endpoint, err := v.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return redact(endpoint), nil
}

func (v *Vault) List(ctx context.Context, filter models.EndpointFilter) ([]*models.Endpoint, error) {
	endpoints, err := v.store.SelectAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}

	out := make([]*models.Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, redact(e))
	}
	return out, nil
}

// Update replaces the endpoint's mutable fields. An empty credential keeps
// the stored one; a new credential is re-hashed with a fresh salt.
func (v *Vault) Update(ctx context.Context, id string, spec models.EndpointSpec) (*models.Endpoint, error) {
	if err := ValidateSpec(spec, false); err != nil {
		return nil, err
	}

	endpoint, err := v.load(ctx, id)
	if err != nil {
		return nil, err
	}

	endpoint.Name = spec.Name
	endpoint.Host = spec.Host
	endpoint.Port = spec.Port
	endpoint.DatabaseName = spec.DatabaseName
	endpoint.Username = spec.Username
	endpoint.SSLMode = spec.SSLMode
	endpoint.Region = spec.Region
	endpoint.CloudProvider = spec.CloudProvider
	if spec.IsActive != nil {
		endpoint.IsActive = *spec.IsActive
	}
	endpoint.UpdatedAt = v.now()

	if spec.Credential != "" {
		if err := v.seal(endpoint, spec.Credential); err != nil {
			return nil, err
		}
	}

	if err := v.store.Update(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to update endpoint: %w", err)
	}

	v.logger.Info("Endpoint updated",
		zap.String("endpoint_id", endpoint.ID),
		zap.Bool("credential_rotated", spec.Credential != ""),
	)

	return redact(endpoint), nil
}

// Delete removes the endpoint. Deleting an unknown id is not an error.
func (v *Vault) Delete(ctx context.Context, id string) error {
	if id == "" {
		return models.NewValidationError("id", "is required")
	}

	removed, err := v.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}

	if removed {
		v.logger.Info("Endpoint deleted", zap.String("endpoint_id", id))
	}
	return nil
}

// RevealForProbe decrypts the credential for one probe. Callers must not
// retain or log the result.
func (v *Vault) RevealForProbe(ctx context.Context, id string) (string, error) {
	endpoint, err := v.load(ctx, id)
	if err != nil {
		return "", err
	}
	return v.reveal(endpoint)
}

// Target builds the connection target for a probe, with the credential
// revealed and the SSL mode resolved.
func (v *Vault) Target(ctx context.Context, endpoint *models.Endpoint) (adapter.Target, error) {
	full, err := v.load(ctx, endpoint.ID)
	if err != nil {
		return adapter.Target{}, err
	}

	password, err := v.reveal(full)
	if err != nil {
		return adapter.Target{}, err
	}

	return adapter.Target{
		Host:     full.Host,
		Port:     full.Port,
		Database: full.DatabaseName,
		Username: full.Username,
		Password: password,
		SSL:      v.EffectiveSSL(full),
	}, nil
}

// Verify reports whether plaintext matches the stored hash.
func (v *Vault) Verify(ctx context.Context, id, plaintext string) (bool, error) {
	endpoint, err := v.load(ctx, id)
	if err != nil {
		return false, err
	}
	return v.hasher.Verify(endpoint.CredentialHash, endpoint.CredentialSalt, plaintext), nil
}

func (v *Vault) EffectiveSSL(endpoint *models.Endpoint) models.EffectiveSSL {
	return v.ssl.Resolve(endpoint.Host, endpoint.SSLMode)
}

// RegisterSeed creates each spec whose name is not already registered and
// returns how many were created.
func (v *Vault) RegisterSeed(ctx context.Context, specs []models.EndpointSpec) (int, error) {
	existing, err := v.store.SelectAll(ctx, models.EndpointFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list endpoints: %w", err)
	}

	names := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		names[e.Name] = struct{}{}
	}

	created := 0
	for i, spec := range specs {
		if _, ok := names[spec.Name]; ok {
			continue
		}
		if _, err := v.Create(ctx, spec); err != nil {
			return created, fmt.Errorf("seed entry %d (%s): %w", i, spec.Name, err)
		}
		names[spec.Name] = struct{}{}
		created++
	}
	return created, nil
}

func (v *Vault) load(ctx context.Context, id string) (*models.Endpoint, error) {
	if id == "" {
		return nil, models.NewValidationError("id", "is required")
	}

	endpoint, err := v.store.SelectByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("endpoint %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load endpoint: %w", err)
	}
	return endpoint, nil
}

func (v *Vault) seal(endpoint *models.Endpoint, credential string) error {
	hash, salt, err := v.hasher.Hash(credential)
	if err != nil {
		return err
	}

	encrypted, err := v.cipher.Seal(credential, endpoint.ID)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	endpoint.CredentialHash = hash
	endpoint.CredentialSalt = salt
	endpoint.EncryptedCredential = encrypted
	return nil
}

func (v *Vault) reveal(endpoint *models.Endpoint) (string, error) {
	password, err := v.cipher.Open(endpoint.EncryptedCredential, endpoint.ID)
	if err != nil {
		return "", fmt.Errorf("endpoint %s: %w", endpoint.ID, err)
	}
	return password, nil
}

func redact(e *models.Endpoint) *models.Endpoint {
	out := e.Clone()
	out.CredentialHash = ""
	out.CredentialSalt = ""
	out.EncryptedCredential = ""
	return out
}
