// Package vault implements the CredentialVault port with AES-256-GCM under a
// key bound to the local machine and OS user.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialVault = (*Vault)(nil)

// KeySource returns the 32-byte AES-256 key.
type KeySource func() ([]byte, error)

// Vault encrypts credentials with AES-256-GCM. Ciphertexts are base64 strings
// containing the nonce (12 bytes) prepended to the sealed data.
type Vault struct {
	keySource KeySource
}

// New creates a Vault that obtains its key from source on every call.
func New(source KeySource) *Vault {
	return &Vault{keySource: source}
}

// Encrypt seals plaintext under the vault key.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", driven.ErrEmptyInput
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w: %w", driven.ErrCryptoUnavailable, err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same key.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", driven.ErrEmptyInput
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w: %w", driven.ErrCryptoCorrupt, err)
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("ciphertext too short: %w", driven.ErrCryptoCorrupt)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w: %w", driven.ErrCryptoCorrupt, err)
	}

	return string(plaintext), nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	if v.keySource == nil {
		return nil, fmt.Errorf("no key source: %w", driven.ErrCryptoUnavailable)
	}
	key, err := v.keySource()
	if err != nil {
		return nil, fmt.Errorf("derive key: %w: %w", driven.ErrCryptoUnavailable, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w: %w", driven.ErrCryptoUnavailable, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w: %w", driven.ErrCryptoUnavailable, err)
	}
	return gcm, nil
}

// StaticKey returns a KeySource for an explicitly configured key.
func StaticKey(key []byte) KeySource {
	return func() ([]byte, error) {
		if len(key) != 32 {
			return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
		}
		return key, nil
	}
}

// ParseHexKey decodes a 64-character hex string into a 32-byte key.
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode hex key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// machineIDPaths are read in order; the first non-empty one wins.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// MachineKey returns a KeySource deriving the key from appName, the machine
// identity and the current OS user. A ciphertext sealed on one machine/user
// fails to open anywhere else.
func MachineKey(appName string) KeySource {
	return func() ([]byte, error) {
		machine, err := machineID()
		if err != nil {
			return nil, err
		}
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("current user: %w", err)
		}
		return deriveKey(appName, machine, u.Uid+":"+u.Username), nil
	}
}

func deriveKey(appName, machine, userID string) []byte {
	h := sha256.New()
	for _, part := range []string{appName, machine, userID} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

func machineID() (string, error) {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve machine identity: %w", err)
	}
	if host == "" {
		return "", errors.New("resolve machine identity: empty hostname")
	}
	return host, nil
}
