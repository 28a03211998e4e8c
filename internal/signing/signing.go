// Package signing signs content hashes of deletion reports and exports.
// Key material lives in memguard enclaves and is only decrypted for the
// duration of a single signature.
package signing

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/complykit/audittrail/pkg/config"
	"github.com/complykit/audittrail/pkg/errclass"
)

// Algorithm names as recorded in reports and export metadata.
const (
	AlgHMACSHA256 = "HMAC-SHA256"
	AlgEd25519    = "Ed25519"
	AlgNone       = "none"
)

// Config names accepted by FromConfig.
const (
	ConfigHMAC    = "hmac-sha256"
	ConfigEd25519 = "ed25519"
)

const minHMACKeyLen = 32

// Signer produces a signature over a digest.
type Signer interface {
	Sign(digest []byte) (string, error)
	Algorithm() string
	KeyID() string
}

// Verifier checks a signature produced by the matching Signer.
type Verifier interface {
	Verify(digest []byte, signature string) error
}

// KeyPair is a signer that can also verify its own signatures.
type KeyPair interface {
	Signer
	Verifier
}

// HMACSigner signs with HMAC-SHA256 over a secret key.
type HMACSigner struct {
	key   *memguard.Enclave
	keyID string
}

// NewHMAC seals a copy of key. The caller's slice is not modified.
func NewHMAC(key []byte, keyID string) (*HMACSigner, error) {
	if len(key) < minHMACKeyLen {
		return nil, errclass.ErrValidation.WithMessagef("hmac key must be at least %d bytes", minHMACKeyLen)
	}
	return &HMACSigner{key: seal(key), keyID: keyID}, nil
}

func (s *HMACSigner) Algorithm() string { return AlgHMACSHA256 }
func (s *HMACSigner) KeyID() string     { return s.keyID }

// Sign returns the hex HMAC of digest.
func (s *HMACSigner) Sign(digest []byte) (string, error) {
	mac, err := s.mac(digest)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(mac), nil
}

// Verify recomputes the HMAC and compares in constant time.
func (s *HMACSigner) Verify(digest []byte, signature string) error {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return errclass.ErrSignatureInvalid.WithMessage("signature is not hex")
	}
	got, err := s.mac(digest)
	if err != nil {
		return err
	}
	if !hmac.Equal(got, want) {
		return errclass.ErrSignatureInvalid.WithMessage("hmac mismatch")
	}
	return nil
}

func (s *HMACSigner) mac(digest []byte) ([]byte, error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, errclass.ErrSigningUnavailable.WithMessagef("open key: %v", err)
	}
	defer buf.Destroy()

	m := hmac.New(sha256.New, buf.Bytes())
	m.Write(digest)
	return m.Sum(nil), nil
}

// Ed25519Signer signs with an Ed25519 private key derived from a sealed seed.
type Ed25519Signer struct {
	seed  *memguard.Enclave
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519 seals a copy of a 32-byte seed.
func NewEd25519(seed []byte, keyID string) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errclass.ErrValidation.WithMessagef("ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	memguard.WipeBytes(priv)

	return &Ed25519Signer{seed: seal(seed), pub: pub, keyID: keyID}, nil
}

func (s *Ed25519Signer) Algorithm() string { return AlgEd25519 }
func (s *Ed25519Signer) KeyID() string     { return s.keyID }

// PublicKey returns the verification key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey { return s.pub }

// Sign returns the hex Ed25519 signature of digest.
func (s *Ed25519Signer) Sign(digest []byte) (string, error) {
	buf, err := s.seed.Open()
	if err != nil {
		return "", errclass.ErrSigningUnavailable.WithMessagef("open key: %v", err)
	}
	defer buf.Destroy()

	priv := ed25519.NewKeyFromSeed(buf.Bytes())
	defer memguard.WipeBytes(priv)
	return hex.EncodeToString(ed25519.Sign(priv, digest)), nil
}

// Verify checks signature against the public key.
func (s *Ed25519Signer) Verify(digest []byte, signature string) error {
	return NewEd25519Verifier(s.pub).Verify(digest, signature)
}

// Ed25519Verifier verifies signatures with a public key only.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier wraps a public key.
func NewEd25519Verifier(pub ed25519.PublicKey) *Ed25519Verifier {
	return &Ed25519Verifier{pub: pub}
}

func (v *Ed25519Verifier) Verify(digest []byte, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return errclass.ErrSignatureInvalid.WithMessage("signature is not hex")
	}
	if len(v.pub) != ed25519.PublicKeySize || !ed25519.Verify(v.pub, digest, sig) {
		return errclass.ErrSignatureInvalid.WithMessage("ed25519 verification failed")
	}
	return nil
}

// Unavailable is a key pair that refuses to sign. Operations that must
// sign fail with ErrSigningUnavailable instead of producing unsigned output.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Algorithm() string { return AlgNone }
func (u Unavailable) KeyID() string     { return "" }

func (u Unavailable) Sign([]byte) (string, error) {
	return "", errclass.ErrSigningUnavailable.WithMessage(u.Reason)
}

func (u Unavailable) Verify([]byte, string) error {
	return errclass.ErrSigningUnavailable.WithMessage(u.Reason)
}

// FromConfig builds a key pair from hex key material in the environment
// variable named by cfg.KeyEnv. A missing variable yields Unavailable so
// the ledger stays usable; malformed key material is an error.
func FromConfig(cfg config.SigningConfig) (KeyPair, error) {
	raw := strings.TrimSpace(os.Getenv(cfg.KeyEnv))
	if cfg.KeyEnv == "" || raw == "" {
		return Unavailable{Reason: fmt.Sprintf("signing key not configured (set %s)", cfg.KeyEnv)}, nil
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errclass.ErrValidation.WithMessagef("%s: key must be hex encoded", cfg.KeyEnv)
	}
	defer memguard.WipeBytes(key)

	switch strings.ToLower(cfg.Algorithm) {
	case "", ConfigHMAC:
		return NewHMAC(key, cfg.KeyID)
	case ConfigEd25519:
		return NewEd25519(key, cfg.KeyID)
	default:
		return nil, errclass.ErrValidation.WithMessagef("unsupported signing algorithm %q", cfg.Algorithm)
	}
}

// GenerateKey returns fresh hex key material suitable for FromConfig.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	defer memguard.WipeBytes(key)
	return hex.EncodeToString(key), nil
}

// DigestHex decodes a hex content hash into the digest bytes that are signed.
func DigestHex(contentHash string) ([]byte, error) {
	d, err := hex.DecodeString(contentHash)
	if err != nil || len(d) != sha256.Size {
		return nil, errclass.ErrHashMismatch.WithMessage("content hash is not a hex SHA-256 digest")
	}
	return d, nil
}

// PublicKeyHex returns the hex public key for Ed25519 key pairs.
func PublicKeyHex(k KeyPair) (string, bool) {
	if e, ok := k.(*Ed25519Signer); ok {
		return hex.EncodeToString(e.pub), true
	}
	return "", false
}

// ParsePublicKey decodes a hex Ed25519 public key.
func ParsePublicKey(s string) (*Ed25519Verifier, error) {
	pub, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, errclass.ErrValidation.WithMessage("public key must be 32 hex-encoded bytes")
	}
	return NewEd25519Verifier(pub), nil
}

func seal(key []byte) *memguard.Enclave {
	cp := make([]byte, len(key))
	copy(cp, key)
	return memguard.NewEnclave(cp)
}
