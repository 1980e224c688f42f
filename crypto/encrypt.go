package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/nacl/box"
)

// NonceSize is the size of a crypto_box nonce in bytes.
const NonceSize = 24

// Nonce is a 24-byte value used for encryption. A fresh nonce is drawn
// for every sealed message; a nonce is never reused under the same key
// pair.
type Nonce [NonceSize]byte

// MaxMessageSize bounds plaintext size (1MB) to prevent excessive memory
// usage on the bridge path.
const MaxMessageSize = 1024 * 1024

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	_, err := rand.Read(nonce[:])
	if err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// Seal authenticated-encrypts a plaintext for the session peer. The
// output embeds the nonce: nonce || box ciphertext, so the result is
// self-contained and safe to transmit over an untrusted channel.
func Seal(plaintext []byte, peerPK [KeySize]byte, kp *KeyPair) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("empty plaintext")
	}
	if len(plaintext) > MaxMessageSize {
		return nil, errors.New("plaintext too large")
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+box.Overhead)
	copy(out, nonce[:])
	out = box.Seal(out, plaintext, (*[NonceSize]byte)(&nonce), (*[KeySize]byte)(&peerPK), (*[KeySize]byte)(&kp.Private))

	return out, nil
}

// EncodeTransport encodes sealed bytes for the bridge as standard base64.
func EncodeTransport(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// DecodeTransport decodes a base64 bridge payload back to sealed bytes.
func DecodeTransport(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return raw, nil
}
