package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/heirvault/escrow-backend/interfaces"
)

// TrusteePubkey is a trustee's PEM-encoded ECDSA public key. It may be shared
// freely; shares destined for the trustee are envelope-encrypted under it.
type TrusteePubkey []byte

// NewTrusteePubkey creates a public key object from PEM data with validation.
func NewTrusteePubkey(data []byte) (TrusteePubkey, error) {
	if _, err := parsePublicKeyPEM(data); err != nil {
		return nil, err
	}
	return TrusteePubkey(data), nil
}

// Validate checks that the key is well-formed PEM containing an ECDSA key.
func (k TrusteePubkey) Validate() error {
	_, err := parsePublicKeyPEM(k)
	return err
}

// Fingerprint returns the hex SHA-256 of the PEM bytes, used to reference a
// registered trustee key without carrying the full PEM around.
func (k TrusteePubkey) Fingerprint() string {
	sum := sha256.Sum256(k)
	return hex.EncodeToString(sum[:])
}

// TrusteePrivkey is a trustee's PEM-encoded ECDSA private key. It must never
// leave the trustee's custody; see the keystore package for at-rest handling.
type TrusteePrivkey []byte

// NewTrusteePrivkey creates a private key object from PEM data with validation.
func NewTrusteePrivkey(data []byte) (TrusteePrivkey, error) {
	if _, err := parsePrivateKeyPEM(data); err != nil {
		return nil, err
	}
	return TrusteePrivkey(data), nil
}

// Validate checks that the key is well-formed PEM containing an EC private key.
func (k TrusteePrivkey) Validate() error {
	_, err := parsePrivateKeyPEM(k)
	return err
}

// Public derives the matching PEM-encoded public key.
func (k TrusteePrivkey) Public() (TrusteePubkey, error) {
	priv, err := parsePrivateKeyPEM(k)
	if err != nil {
		return nil, err
	}
	return marshalPublicKeyPEM(&priv.PublicKey)
}

// TrusteeKeyPair bundles a trustee's key material in both parsed and PEM
// forms. The PEM forms are what cross process boundaries.
type TrusteeKeyPair struct {
	PublicKey     *ecdsa.PublicKey
	PrivateKey    *ecdsa.PrivateKey
	PublicKeyPEM  TrusteePubkey
	PrivateKeyPEM TrusteePrivkey
}

// GenerateTrusteeKeyPair creates a fresh ECDSA P-256 key pair for a trustee.
// P-256 provides 128-bit security, comparable to RSA-3072.
func GenerateTrusteeKeyPair() (*TrusteeKeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate trustee key: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})

	pubPEM, err := marshalPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	return &TrusteeKeyPair{
		PublicKey:     &priv.PublicKey,
		PrivateKey:    priv,
		PublicKeyPEM:  pubPEM,
		PrivateKeyPEM: TrusteePrivkey(privPEM),
	}, nil
}

// ImportPublicKey parses a PEM-encoded trustee public key.
func ImportPublicKey(pemData []byte) (*ecdsa.PublicKey, error) {
	return parsePublicKeyPEM(pemData)
}

// ImportPrivateKey parses a PEM-encoded trustee private key.
func ImportPrivateKey(pemData []byte) (*ecdsa.PrivateKey, error) {
	return parsePrivateKeyPEM(pemData)
}

func parsePublicKeyPEM(pemData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: not PEM data", interfaces.ErrKeyImport)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrKeyImport, err)
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA public key", interfaces.ErrKeyImport)
	}
	return ecdsaPub, nil
}

func parsePrivateKeyPEM(pemData []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: not PEM data", interfaces.ErrKeyImport)
	}

	if priv, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return priv, nil
	}

	// Fall back to PKCS#8 for keys exported by other tooling.
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrKeyImport, err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA private key", interfaces.ErrKeyImport)
	}
	return priv, nil
}

func marshalPublicKeyPEM(pub *ecdsa.PublicKey) (TrusteePubkey, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return TrusteePubkey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})), nil
}

// WipeBytes overwrites sensitive data in place.
func WipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
