package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// countingStore counts reads and writes reaching the backing store.
type countingStore struct {
	store.CredentialStore
	calls int
}

func (c *countingStore) Insert(ctx context.Context, e *models.Endpoint) error {
	c.calls++
	return c.CredentialStore.Insert(ctx, e)
}

func (c *countingStore) SelectByID(ctx context.Context, id string) (*models.Endpoint, error) {
	c.calls++
	return c.CredentialStore.SelectByID(ctx, id)
}

func newTestVault(t *testing.T) (*Vault, *countingStore) {
	t.Helper()

	cipher, err := NewCipher("test-encryption-key")
	require.NoError(t, err)
	hasher, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	cs := &countingStore{CredentialStore: store.NewMemoryCredentialStore()}
	return New(cs, cipher, hasher, adapter.NewSSLPolicy(adapter.DefaultLocalAliases), zap.NewNop()), cs
}

func validSpec() models.EndpointSpec {
	return models.EndpointSpec{
		Name:          "orders-primary",
		Host:          "db.example.com",
		Port:          5432,
		DatabaseName:  "orders",
		Username:      "svc_orders",
		Credential:    "hunter2",
		Region:        "eu-west-1",
		CloudProvider: "aws",
	}
}

func TestCreate_NeverExposesCredential(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	created, err := v.Create(ctx, validSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Empty(t, created.CredentialHash)
	assert.Empty(t, created.EncryptedCredential)

	got, err := v.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Empty(t, got.CredentialHash)
	assert.Empty(t, got.CredentialSalt)
	assert.Empty(t, got.EncryptedCredential)

	listed, err := v.List(ctx, models.EndpointFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].EncryptedCredential)
}

func TestCreate_StoredMaterialIsNotPlaintext(t *testing.T) {
	v, cs := newTestVault(t)
	ctx := context.Background()

	created, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	raw, err := cs.CredentialStore.SelectByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw.CredentialHash)
	assert.NotEmpty(t, raw.CredentialSalt)
	assert.NotContains(t, raw.CredentialHash, "hunter2")
	assert.NotContains(t, raw.EncryptedCredential, "hunter2")
}

func TestHash_SameCredentialDiffersAndVerifies(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	first, err := v.Create(ctx, validSpec())
	require.NoError(t, err)
	second, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	h := v.hasher
	hashA, saltA, err := h.Hash("hunter2")
	require.NoError(t, err)
	hashB, saltB, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
	assert.NotEqual(t, saltA, saltB)

	for _, id := range []string{first.ID, second.ID} {
		ok, err := v.Verify(ctx, id, "hunter2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = v.Verify(ctx, id, "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestRevealForProbe_RoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	created, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	plain, err := v.RevealForProbe(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	target, err := v.Target(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", target.Password)
	assert.Equal(t, "orders", target.Database)
	assert.Equal(t, models.EffectiveSSLRequired, target.SSL)
}

func TestRevealForProbe_BlobBoundToEndpoint(t *testing.T) {
	v, cs := newTestVault(t)
	ctx := context.Background()

	a, err := v.Create(ctx, validSpec())
	require.NoError(t, err)
	b, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	rawA, _ := cs.CredentialStore.SelectByID(ctx, a.ID)
	rawB, _ := cs.CredentialStore.SelectByID(ctx, b.ID)
	rawB.EncryptedCredential = rawA.EncryptedCredential
	require.NoError(t, cs.Update(ctx, rawB))

	_, err = v.RevealForProbe(ctx, b.ID)
	assert.ErrorIs(t, err, ErrCorruptSecret)
}

func TestRevealForProbe_WrongKeyFails(t *testing.T) {
	v, cs := newTestVault(t)
	ctx := context.Background()

	created, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	other, err := NewCipher("a-different-key")
	require.NoError(t, err)
	v2 := New(cs, other, v.hasher, v.ssl, zap.NewNop())

	_, err = v2.RevealForProbe(ctx, created.ID)
	assert.ErrorIs(t, err, ErrCorruptSecret)
}

func TestEffectiveSSL(t *testing.T) {
	v, _ := newTestVault(t)

	tests := []struct {
		host     string
		mode     models.SSLMode
		expected models.EffectiveSSL
	}{
		{"localhost", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"127.0.0.1", models.SSLModeAuto, models.EffectiveSSLDisabled},
		{"db.example.com", models.SSLModeAuto, models.EffectiveSSLRequired},
		{"localhost.example.com", models.SSLModeAuto, models.EffectiveSSLRequired},
		{"db.example.com", models.SSLModeDisable, models.EffectiveSSLDisabled},
		{"localhost", models.SSLModeRequire, models.EffectiveSSLRequired},
	}

	for _, tt := range tests {
		t.Run(tt.host+"/"+string(tt.mode), func(t *testing.T) {
			got := v.EffectiveSSL(&models.Endpoint{Host: tt.host, SSLMode: tt.mode})
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCreate_ValidationBeforeIO(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.EndpointSpec)
		field  string
	}{
		{"port zero", func(s *models.EndpointSpec) { s.Port = 0 }, "port"},
		{"port too high", func(s *models.EndpointSpec) { s.Port = 70000 }, "port"},
		{"empty host", func(s *models.EndpointSpec) { s.Host = "" }, "host"},
		{"host with scheme", func(s *models.EndpointSpec) { s.Host = "postgres://db" }, "host"},
		{"host with space", func(s *models.EndpointSpec) { s.Host = "db example" }, "host"},
		{"empty name", func(s *models.EndpointSpec) { s.Name = " " }, "name"},
		{"empty database", func(s *models.EndpointSpec) { s.DatabaseName = "" }, "database_name"},
		{"empty username", func(s *models.EndpointSpec) { s.Username = "" }, "username"},
		{"empty credential", func(s *models.EndpointSpec) { s.Credential = "" }, "credential"},
		{"bad ssl mode", func(s *models.EndpointSpec) { s.SSLMode = "verify-full" }, "ssl_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, cs := newTestVault(t)
			spec := validSpec()
			tt.mutate(&spec)

			_, err := v.Create(context.Background(), spec)

			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, cs.calls, "no store I/O on invalid input")
		})
	}
}

func TestCreate_AcceptsIPHosts(t *testing.T) {
	v, _ := newTestVault(t)

	for _, host := range []string{"10.0.0.12", "::1", "2001:db8::1"} {
		spec := validSpec()
		spec.Host = host
		_, err := v.Create(context.Background(), spec)
		assert.NoError(t, err, host)
	}
}

func TestUpdate_RotatesCredential(t *testing.T) {
	v, cs := newTestVault(t)
	ctx := context.Background()

	created, err := v.Create(ctx, validSpec())
	require.NoError(t, err)
	before, _ := cs.CredentialStore.SelectByID(ctx, created.ID)

	spec := validSpec()
	spec.Credential = ""
	spec.Port = 6432
	inactive := false
	spec.IsActive = &inactive

	updated, err := v.Update(ctx, created.ID, spec)
	require.NoError(t, err)
	assert.Equal(t, 6432, updated.Port)
	assert.False(t, updated.IsActive)

	kept, _ := cs.CredentialStore.SelectByID(ctx, created.ID)
	assert.Equal(t, before.CredentialHash, kept.CredentialHash, "empty credential keeps the stored one")

	spec.Credential = "new-secret"
	_, err = v.Update(ctx, created.ID, spec)
	require.NoError(t, err)

	plain, err := v.RevealForProbe(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-secret", plain)

	ok, err := v.Verify(ctx, created.ID, "hunter2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate_UnknownID(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Update(context.Background(), "missing", validSpec())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDelete_Idempotent(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	created, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	require.NoError(t, v.Delete(ctx, created.ID))
	require.NoError(t, v.Delete(ctx, created.ID))
	require.NoError(t, v.Delete(ctx, "never-existed"))

	_, err = v.Get(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegisterSeed_SkipsExistingNames(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	_, err := v.Create(ctx, validSpec())
	require.NoError(t, err)

	second := validSpec()
	second.Name = "orders-replica"

	n, err := v.RegisterSeed(ctx, []models.EndpointSpec{validSpec(), second, second})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, _ := v.List(ctx, models.EndpointFilter{})
	assert.Len(t, all, 2)
}

func TestNewCipher_RequiresKey(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestNewHasher_Cost(t *testing.T) {
	h, err := NewHasher(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, h.cost)

	_, err = NewHasher(99)
	assert.ErrorIs(t, err, ErrInvalidBcryptCost)
}
