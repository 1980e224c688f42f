package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the number of iterations for key derivation.
	pbkdf2Iterations = 100000
	// encryptionVersion is the current record format version.
	encryptionVersion = 1
	// saltSize is the size of the PBKDF2 salt in bytes.
	saltSize = 32
)

// EncryptedStore wraps a FileStore with AES-256-GCM encryption at rest.
// Session records contain private key material, so the on-disk form is
// protected even if the filesystem is compromised. The encryption key is
// derived from a master password with PBKDF2 and a persisted salt.
//
// Record format: [version:2][nonce:12][ciphertext+tag:N].
type EncryptedStore struct {
	inner         *FileStore
	encryptionKey [32]byte
	saltFile      string
}

// NewEncryptedStore opens (or initializes) an encrypted store in dir.
// masterPassword should come from the platform keyring or a user
// passphrase; it is wiped after key derivation.
func NewEncryptedStore(dir string, masterPassword []byte) (*EncryptedStore, error) {
	if len(masterPassword) == 0 {
		return nil, fmt.Errorf("master password cannot be empty")
	}

	inner, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}

	es := &EncryptedStore{
		inner:    inner,
		saltFile: filepath.Join(dir, ".salt"),
	}

	salt, err := es.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derivedKey := pbkdf2.Key(masterPassword, salt, pbkdf2Iterations, 32, sha256.New)
	copy(es.encryptionKey[:], derivedKey)

	wipe(derivedKey)
	wipe(masterPassword)

	return es, nil
}

// loadOrGenerateSalt loads the existing salt or generates a new one.
func (es *EncryptedStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(es.saltFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read salt file: %w", err)
		}

		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := os.WriteFile(es.saltFile, salt, 0o600); err != nil {
			return nil, fmt.Errorf("failed to save salt: %w", err)
		}
		return salt, nil
	}

	if len(data) != saltSize {
		return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), saltSize)
	}
	return data, nil
}

// Get implements Store, decrypting and authenticating the record.
func (es *EncryptedStore) Get(key string) ([]byte, error) {
	data, err := es.inner.Get(key)
	if err != nil {
		return nil, err
	}

	if len(data) < 2+12+16 {
		return nil, fmt.Errorf("record too short: %d bytes", len(data))
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if version != encryptionVersion {
		return nil, fmt.Errorf("unsupported record version: %d (expected %d)", version, encryptionVersion)
	}

	gcm, err := es.cipher()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < 2+nonceSize {
		return nil, fmt.Errorf("record too short for nonce: %d bytes", len(data))
	}

	nonce := data[2 : 2+nonceSize]
	ciphertext := data[2+nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("record decryption failed (wrong password or corrupted data): %w", err)
	}
	return plaintext, nil
}

// Put implements Store, encrypting the record with a unique nonce.
func (es *EncryptedStore) Put(key string, value []byte) error {
	gcm, err := es.cipher()
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, value, nil)

	record := make([]byte, 2+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(record[0:2], encryptionVersion)
	copy(record[2:2+len(nonce)], nonce)
	copy(record[2+len(nonce):], ciphertext)

	return es.inner.Put(key, record)
}

// Delete implements Store.
func (es *EncryptedStore) Delete(key string) error {
	return es.inner.Delete(key)
}

// Keys implements Store. Key names are not encrypted, only values.
func (es *EncryptedStore) Keys(prefix string) ([]string, error) {
	return es.inner.Keys(prefix)
}

// Close wipes the encryption key from memory. The store must not be used
// afterwards.
func (es *EncryptedStore) Close() error {
	wipe(es.encryptionKey[:])
	return nil
}

func (es *EncryptedStore) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(es.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// wipe overwrites sensitive byte slices.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
