package solana

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFernetKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

func TestFernetDecrypter_OpensStoredKey(t *testing.T) {
	d, err := NewFernetDecrypter(newFernetKey(t))
	require.NoError(t, err)

	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	token, err := d.Encrypt(pk.String())
	require.NoError(t, err)
	assert.Contains(t, token, encryptedKeyMarker)

	kp, err := newTestKeyParser(d).ParseString(token)
	require.NoError(t, err)
	assert.Equal(t, pk.PublicKey(), kp.PublicKey())
}

func TestFernetDecrypter_RotatedKeys(t *testing.T) {
	oldKey, newKey := newFernetKey(t), newFernetKey(t)

	old, err := NewFernetDecrypter(oldKey)
	require.NoError(t, err)
	token, err := old.Encrypt("secret")
	require.NoError(t, err)

	rotated, err := NewFernetDecrypter(newKey, oldKey)
	require.NoError(t, err)
	plain, err := rotated.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	other, err := NewFernetDecrypter(newKey)
	require.NoError(t, err)
	_, err = other.Decrypt(token)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = newTestKeyParser(other).ParseString(token)
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestNewFernetDecrypter_RejectsBadKeys(t *testing.T) {
	_, err := NewFernetDecrypter()
	assert.Error(t, err)

	_, err = NewFernetDecrypter("too-short")
	assert.Error(t, err)
}
