// Package proof builds and verifies domain-bound ownership proofs for
// the TonConnect connect handshake (ton_proof reply items).
//
// The signed payload layout is fixed by the protocol and must match the
// bytes a dApp-side verifier reconstructs independently; any reordering
// of fields breaks verification.
package proof

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Layout constants of the ton-proof-item-v2 signed message.
const (
	messagePrefix = "ton-proof-item-v2/"
	signPrefix    = "ton-connect"
)

// ErrProofConstruction is returned when the proof message cannot be
// assembled or signed.
var ErrProofConstruction = errors.New("proof construction failed")

// Domain identifies the dApp origin the proof is bound to.
type Domain struct {
	LengthBytes uint32 `json:"lengthBytes"`
	Value       string `json:"value"`
}

// DomainFromURL derives the proof domain from a dApp origin URL.
func DomainFromURL(originURL string) (Domain, error) {
	u, err := url.Parse(originURL)
	if err != nil || u.Host == "" {
		return Domain{}, fmt.Errorf("cannot derive proof domain from %q", originURL)
	}
	host := u.Hostname()
	return Domain{LengthBytes: uint32(len(host)), Value: host}, nil
}

// Proof is a time-bound, domain-bound signed assertion of wallet address
// ownership, carrying exactly the fields a verifier needs to rebuild the
// signed bytes.
type Proof struct {
	Timestamp int64  `json:"timestamp"`
	Domain    Domain `json:"domain"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	StateInit string `json:"stateInit,omitempty"`
}

// Build constructs and signs a proof for the given wallet address using
// the current time.
func Build(addr Address, seed [32]byte, payload string, domain Domain, stateInitBase64 string) (*Proof, error) {
	return BuildAt(addr, seed, payload, domain, stateInitBase64, time.Now().Unix())
}

// BuildAt is Build with an explicit unix timestamp.
func BuildAt(addr Address, seed [32]byte, payload string, domain Domain, stateInitBase64 string, timestamp int64) (*Proof, error) {
	digest, err := signedDigest(addr, domain, timestamp, payload)
	if err != nil {
		return nil, err
	}

	// Wallet keys are Ed25519; expand the 32-byte seed to a full
	// private key for signing.
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	signature := ed25519.Sign(privateKey, digest)

	logrus.WithFields(logrus.Fields{
		"function":  "BuildAt",
		"domain":    domain.Value,
		"timestamp": timestamp,
		"address":   addr.String(),
	}).Debug("Signed ownership proof")

	return &Proof{
		Timestamp: timestamp,
		Domain:    domain,
		Payload:   payload,
		Signature: base64.StdEncoding.EncodeToString(signature),
		StateInit: stateInitBase64,
	}, nil
}

// Verify reconstructs the signed bytes from the proof's own fields and
// checks the signature against the wallet's public key.
func Verify(p *Proof, addr Address, publicKey ed25519.PublicKey) (bool, error) {
	digest, err := signedDigest(addr, p.Domain, p.Timestamp, p.Payload)
	if err != nil {
		return false, err
	}

	signature, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return false, fmt.Errorf("malformed proof signature: %w", err)
	}

	return ed25519.Verify(publicKey, digest, signature), nil
}

// signedDigest assembles the fixed-format message and folds it into the
// final digest that gets signed:
//
//	message = "ton-proof-item-v2/" || wc(int32 BE) || addrHash(32) ||
//	          domainLen(uint32 LE) || domain || timestamp(uint64 LE) || payload
//	digest  = sha256(0xffff || "ton-connect" || sha256(message))
func signedDigest(addr Address, domain Domain, timestamp int64, payload string) ([]byte, error) {
	if domain.Value == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrProofConstruction)
	}
	if domain.LengthBytes != uint32(len(domain.Value)) {
		return nil, fmt.Errorf("%w: domain length %d does not match value %q", ErrProofConstruction, domain.LengthBytes, domain.Value)
	}

	var message bytes.Buffer
	message.WriteString(messagePrefix)

	var wc [4]byte
	binary.BigEndian.PutUint32(wc[:], uint32(addr.Workchain))
	message.Write(wc[:])
	message.Write(addr.Hash[:])

	var domainLen [4]byte
	binary.LittleEndian.PutUint32(domainLen[:], domain.LengthBytes)
	message.Write(domainLen[:])
	message.WriteString(domain.Value)

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(timestamp))
	message.Write(ts[:])
	message.WriteString(payload)

	messageHash := sha256.Sum256(message.Bytes())

	var full bytes.Buffer
	full.Write([]byte{0xff, 0xff})
	full.WriteString(signPrefix)
	full.Write(messageHash[:])

	digest := sha256.Sum256(full.Bytes())
	return digest[:], nil
}
