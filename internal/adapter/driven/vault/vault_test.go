package vault

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

func testKey(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 32)
}

func TestVault_RoundTrip(t *testing.T) {
	v := New(StaticKey(testKey(1)))

	ciphertext, err := v.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "hunter2")

	plaintext, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)
}

func TestVault_NonceIsRandom(t *testing.T) {
	v := New(StaticKey(testKey(1)))

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVault_EmptyInputRejected(t *testing.T) {
	v := New(StaticKey(testKey(1)))

	_, err := v.Encrypt("")
	assert.ErrorIs(t, err, driven.ErrEmptyInput)

	_, err = v.Decrypt("")
	assert.ErrorIs(t, err, driven.ErrEmptyInput)
}

func TestVault_OtherKeyIsCorrupt(t *testing.T) {
	ciphertext, err := New(StaticKey(testKey(1))).Encrypt("hunter2")
	require.NoError(t, err)

	_, err = New(StaticKey(testKey(2))).Decrypt(ciphertext)
	assert.ErrorIs(t, err, driven.ErrCryptoCorrupt)
}

func TestVault_GarbageIsCorrupt(t *testing.T) {
	v := New(StaticKey(testKey(1)))

	_, err := v.Decrypt("not base64 !!")
	assert.ErrorIs(t, err, driven.ErrCryptoCorrupt)

	_, err = v.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, driven.ErrCryptoCorrupt)
}

func TestVault_KeySourceFailureIsUnavailable(t *testing.T) {
	v := New(func() ([]byte, error) { return nil, errors.New("keyring locked") })

	_, err := v.Encrypt("hunter2")
	assert.ErrorIs(t, err, driven.ErrCryptoUnavailable)

	_, err = v.Decrypt(base64.StdEncoding.EncodeToString(make([]byte, 64)))
	assert.ErrorIs(t, err, driven.ErrCryptoUnavailable)

	_, err = New(nil).Encrypt("hunter2")
	assert.ErrorIs(t, err, driven.ErrCryptoUnavailable)
}

func TestVault_WrongKeyLengthIsUnavailable(t *testing.T) {
	_, err := New(StaticKey([]byte("short"))).Encrypt("hunter2")
	assert.ErrorIs(t, err, driven.ErrCryptoUnavailable)
}

func TestParseHexKey(t *testing.T) {
	key, err := ParseHexKey("  " + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff" + "\n")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = ParseHexKey("abcd")
	assert.Error(t, err)

	_, err = ParseHexKey("zz")
	assert.Error(t, err)
}

func TestDeriveKey_BoundToMachineAndUser(t *testing.T) {
	base := deriveKey("app", "machine-a", "1000:alice")

	assert.Len(t, base, 32)
	assert.Equal(t, base, deriveKey("app", "machine-a", "1000:alice"))
	assert.NotEqual(t, base, deriveKey("app", "machine-b", "1000:alice"))
	assert.NotEqual(t, base, deriveKey("app", "machine-a", "1001:bob"))
	assert.NotEqual(t, base, deriveKey("other", "machine-a", "1000:alice"))
}

func TestMachineKey_ProducesUsableKey(t *testing.T) {
	source := MachineKey("jirastopwatch-test")
	key, err := source()
	if err != nil {
		t.Skipf("machine identity unavailable: %v", err)
	}
	assert.Len(t, key, 32)

	v := New(source)
	ciphertext, err := v.Encrypt("hunter2")
	require.NoError(t, err)
	plaintext, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)
}
