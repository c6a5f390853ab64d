package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/vault"
)

func TestCipher_EncryptDecryptRoundTrip(t *testing.T) {
	c, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)

	plaintext := []byte(`{"number":"4242424242424242","exp_month":"12","exp_year":"2028"}`)
	aad := []byte("tok_abc123")

	env, err := c.Encrypt(plaintext, aad)
	require.NoError(t, err)
	assert.Equal(t, vault.EnvelopeVersion, env.Version)
	assert.Len(t, env.AuthTag, 16)
	assert.NotEmpty(t, env.IV)
	assert.Equal(t, "k1", env.KeyID)

	decrypted, err := c.Decrypt(env, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCipher_TamperedTagFailsClosed(t *testing.T) {
	c, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)

	env, err := c.Encrypt([]byte("sensitive"), []byte("tok_1"))
	require.NoError(t, err)

	env.AuthTag[0] ^= 0xff

	plaintext, err := c.Decrypt(env, []byte("tok_1"))
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
	assert.Nil(t, plaintext, "no partial plaintext on tag mismatch")
}

func TestCipher_TamperedCiphertextFailsClosed(t *testing.T) {
	c, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)

	env, err := c.Encrypt([]byte("sensitive"), nil)
	require.NoError(t, err)

	env.Ciphertext[0] ^= 0x01

	_, err = c.Decrypt(env, nil)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestCipher_AADBindsEnvelopeToRecord(t *testing.T) {
	c, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)

	env, err := c.Encrypt([]byte("sensitive"), []byte("tok_owner"))
	require.NoError(t, err)

	// Replaying the envelope against a different token record must fail.
	_, err = c.Decrypt(env, []byte("tok_other"))
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestCipher_UnsupportedVersionRejected(t *testing.T) {
	c, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)

	env, err := c.Encrypt([]byte("sensitive"), nil)
	require.NoError(t, err)
	env.Version = 2

	_, err = c.Decrypt(env, nil)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestCipher_FingerprintStableAcrossInstances(t *testing.T) {
	c1, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)
	c2, err := vault.NewCipher([]byte("master-secret-for-tests"), "k2")
	require.NoError(t, err)

	// Fingerprint derivation is independent of the data key id, so
	// re-tokenizing the same PAN after a key rotation still dedups.
	assert.Equal(t, c1.Fingerprint("4242424242424242"), c2.Fingerprint("4242424242424242"))
	assert.NotEqual(t, c1.Fingerprint("4242424242424242"), c1.Fingerprint("4000056655665556"))
}

func TestCipher_DistinctNoncesPerEncryption(t *testing.T) {
	c, err := vault.NewCipher([]byte("master-secret-for-tests"), "k1")
	require.NoError(t, err)

	env1, err := c.Encrypt([]byte("same plaintext"), nil)
	require.NoError(t, err)
	env2, err := c.Encrypt([]byte("same plaintext"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, env1.IV, env2.IV)
	assert.NotEqual(t, env1.Ciphertext, env2.Ciphertext)
}

func TestNewCipher_RequiresMasterSecret(t *testing.T) {
	_, err := vault.NewCipher(nil, "k1")
	assert.Error(t, err)
}
