package driven

import "errors"

// ErrCryptoUnavailable is returned when the machine/user key cannot be
// obtained, so nothing can be encrypted or decrypted.
var ErrCryptoUnavailable = errors.New("credential encryption unavailable")

// ErrCryptoCorrupt is returned when a ciphertext was not produced by this
// vault, or was produced for another machine or user.
var ErrCryptoCorrupt = errors.New("credential ciphertext corrupt")

// ErrEmptyInput is returned when Encrypt or Decrypt is called with "".
// Callers treat an empty password as "no credential stored" and skip the vault.
var ErrEmptyInput = errors.New("credential vault called with empty input")

// CredentialVault reversibly encrypts the stored tracker password. The key is
// scoped to the local machine and user; ciphertexts are not portable.
type CredentialVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
