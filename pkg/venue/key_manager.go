package venue

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/blocto/solana-go-sdk/types"
)

// KeyManager handles bot signing-key generation, encryption, and decryption.
// Keys are stored AES-256-GCM encrypted in the bot row and decrypted only for
// the duration of a single command signing.
type KeyManager struct {
	password string
}

// NewKeyManager creates a KeyManager deriving its cipher key from the given
// password.
func NewKeyManager(password string) *KeyManager {
	return &KeyManager{password: password}
}

// GenerateKeyPair generates a new Solana key pair for a bot.
func (km *KeyManager) GenerateKeyPair() (*types.Account, error) {
	account := types.NewAccount()
	return &account, nil
}

// EncryptPrivateKey encrypts a private key using AES-256-GCM.
func (km *KeyManager) EncryptPrivateKey(privateKey []byte) (string, error) {
	key := deriveKey(km.password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Nonce and ciphertext are stored together.
	ciphertext := gcm.Seal(nonce, nonce, privateKey, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptPrivateKey decrypts a private key using AES-256-GCM. Callers must
// zero the returned bytes as soon as the key has been used; see ZeroKey.
func (km *KeyManager) DecryptPrivateKey(encryptedKey string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	key := deriveKey(km.password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// ZeroKey overwrites key material in place.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// SignCommand signs a command body with a decrypted private key and returns
// the base64 signature plus the signer's public key. The key bytes are not
// retained.
func SignCommand(privateKey []byte, body []byte) (signature string, pubkey string, err error) {
	account, err := types.AccountFromBytes(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("invalid signing key: %w", err)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(account.PrivateKey), body)
	return base64.StdEncoding.EncodeToString(sig), account.PublicKey.ToBase58(), nil
}

// deriveKey derives a 32-byte AES key from a password
func deriveKey(password string) []byte {
	hash := sha256.Sum256([]byte(password))
	return hash[:]
}
