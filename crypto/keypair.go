// Package crypto implements the cryptographic primitives for TonConnect
// sessions.
//
// Each wallet<->dApp session owns a NaCl crypto_box key pair; message
// payloads are authenticated-encrypted under that pair and the dApp's
// public key. Keys are handled through Go's x/crypto packages.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Session fingerprint:", keys.PublicKeyHex())
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the size of a NaCl crypto_box key in bytes.
const KeySize = 32

// ErrInvalidKeyMaterial is returned when hex-encoded key material cannot
// be decoded or has the wrong length.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// KeyPair represents the wallet-side NaCl crypto_box key pair of one
// TonConnect session. A key pair is exclusively owned by its session and
// never reused for a different peer.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random NaCl key pair for a fresh session.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	keyPair := &KeyPair{
		Public:  *publicKey,
		Private: *privateKey,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "GenerateKeyPair",
		"public_key": keyPair.Public[:8],
	}).Debug("Generated session key pair")

	return keyPair, nil
}

// FromHex reconstructs a key pair from hex-encoded material. It is used
// only when importing sessions from the legacy state format.
func FromHex(publicHex, privateHex string) (*KeyPair, error) {
	public, err := decodeKey(publicHex)
	if err != nil {
		return nil, err
	}
	private, err := decodeKey(privateHex)
	if err != nil {
		return nil, err
	}

	return &KeyPair{Public: public, Private: private}, nil
}

func decodeKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte

	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, ErrInvalidKeyMaterial
	}
	if len(raw) != KeySize {
		return key, ErrInvalidKeyMaterial
	}

	copy(key[:], raw)
	return key, nil
}

// PublicKeyHex returns the hex form of the public key. This is the
// session fingerprint used for deduplication and bridge addressing.
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.Public[:])
}

// PrivateKeyHex returns the hex form of the private key, used when
// serializing a session to durable storage.
func (kp *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(kp.Private[:])
}

// DecodePeerKey decodes a peer's hex-encoded public key, as carried in
// the dApp's clientId.
func DecodePeerKey(clientID string) ([KeySize]byte, error) {
	return decodeKey(clientID)
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
