package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/psp/factory"
	"github.com/cardroute/cardroute/internal/vault"
	"github.com/cardroute/cardroute/internal/vault/local"
)

func newTestVault(t *testing.T) vault.Provider {
	t.Helper()

	cipher, err := vault.NewCipher([]byte("test-master-secret"), "k1")
	require.NoError(t, err)

	v, err := local.NewProvider(local.ProviderConfig{
		Store:  local.NewMemoryStore(),
		Cipher: cipher,
	})
	require.NoError(t, err)
	return v
}

func TestFactory_BuildsAndCaches(t *testing.T) {
	f := factory.New(factory.Config{
		Credentials: map[string]psp.Credentials{
			"stripe": {APIKey: "sk_test"},
			"adyen":  {APIKey: "aq_test", MerchantAccount: "TestECOM"},
		},
		Vault: newTestVault(t),
	})

	stripeAdapter, err := f.Adapter("stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", stripeAdapter.Name())

	again, err := f.Adapter("stripe")
	require.NoError(t, err)
	assert.Same(t, stripeAdapter, again, "adapters are cached")

	adyenAdapter, err := f.Adapter("adyen")
	require.NoError(t, err)
	assert.Equal(t, "adyen", adyenAdapter.Name())
}

func TestFactory_UnknownProvider(t *testing.T) {
	f := factory.New(factory.Config{Vault: newTestVault(t)})

	_, err := f.Adapter("worldpay")
	assert.ErrorIs(t, err, psp.ErrUnknownProvider)
}

func TestFactory_MissingCredentialsIsValidationError(t *testing.T) {
	f := factory.New(factory.Config{Vault: newTestVault(t)})

	_, err := f.Adapter("stripe")
	var verr *psp.ValidationError
	assert.ErrorAs(t, err, &verr)
}
