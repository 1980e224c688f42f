package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/box"
)

// ErrDecryptionFailed is returned on authentication-tag mismatch,
// truncated input, or a malformed transport payload.
var ErrDecryptionFailed = errors.New("decryption failed")

// Open decrypts a sealed message produced by Seal (nonce || ciphertext)
// and verifies its authentication tag.
func Open(sealed []byte, peerPK [KeySize]byte, kp *KeyPair) ([]byte, error) {
	if len(sealed) <= NonceSize {
		return nil, ErrDecryptionFailed
	}

	var nonce Nonce
	copy(nonce[:], sealed[:NonceSize])

	plaintext, ok := box.Open(nil, sealed[NonceSize:], (*[NonceSize]byte)(&nonce), (*[KeySize]byte)(&peerPK), (*[KeySize]byte)(&kp.Private))
	if !ok {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
