package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/heirvault/escrow-backend/interfaces"
)

// gcmNonceSize is the standard 12-byte GCM nonce length.
const gcmNonceSize = 12

// EncryptShare envelope-encrypts one Shamir share for a single trustee using
// ECIES: an ephemeral ECDH key agreement derives a fresh AES-256 key, and the
// share is sealed with AES-GCM under a random nonce. A new ephemeral key is
// generated per call, so no two encryptions share key material, and there is
// no payload size ceiling, arbitrary share lengths are supported.
//
// The returned EncryptedShare carries the ephemeral public key and ciphertext
// in EncryptedData ([2-byte key length][ephemeral key][ciphertext]) and the
// GCM nonce in IV.
func EncryptShare(share []byte, trusteePub TrusteePubkey, trusteeEmail string, shareIndex int) (interfaces.EncryptedShare, error) {
	if len(share) == 0 {
		return interfaces.EncryptedShare{}, fmt.Errorf("%w: empty share", interfaces.ErrInvalidInput)
	}

	pub, err := parsePublicKeyPEM(trusteePub)
	if err != nil {
		return interfaces.EncryptedShare{}, err
	}

	// Ephemeral key for the ECDH agreement; forward secrecy per share.
	ephemeral, err := ecdsa.GenerateKey(pub.Curve, rand.Reader)
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	x, _ := pub.Curve.ScalarMult(pub.X, pub.Y, ephemeral.D.Bytes())
	sharedSecret := sha256.Sum256(x.Bytes())

	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	aesBlock, err := aes.NewCipher(sharedSecret[:])
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, iv, share, nil)

	ephemeralPub := elliptic.Marshal(ephemeral.Curve, ephemeral.X, ephemeral.Y)

	data := make([]byte, 2+len(ephemeralPub)+len(ciphertext))
	binary.BigEndian.PutUint16(data[0:2], uint16(len(ephemeralPub)))
	copy(data[2:2+len(ephemeralPub)], ephemeralPub)
	copy(data[2+len(ephemeralPub):], ciphertext)

	return interfaces.EncryptedShare{
		EncryptedData: data,
		IV:            iv,
		TrusteeEmail:  trusteeEmail,
		ShareIndex:    shareIndex,
	}, nil
}

// DecryptShare recovers a share encrypted with EncryptShare using the
// trustee's private key. A wrong private key, corrupted ciphertext and a
// tampered IV all surface as interfaces.ErrDecryptionFailure; the caller
// cannot distinguish the causes.
func DecryptShare(enc interfaces.EncryptedShare, trusteePriv TrusteePrivkey) ([]byte, error) {
	priv, err := parsePrivateKeyPEM(trusteePriv)
	if err != nil {
		return nil, err
	}

	if len(enc.EncryptedData) < 2 {
		return nil, fmt.Errorf("%w: encrypted data too short", interfaces.ErrDecryptionFailure)
	}
	if len(enc.IV) != gcmNonceSize {
		return nil, fmt.Errorf("%w: bad IV length %d", interfaces.ErrDecryptionFailure, len(enc.IV))
	}

	ephemeralLen := binary.BigEndian.Uint16(enc.EncryptedData[0:2])
	if len(enc.EncryptedData) < int(2+ephemeralLen) {
		return nil, fmt.Errorf("%w: truncated ephemeral key", interfaces.ErrDecryptionFailure)
	}

	ephemeralBytes := enc.EncryptedData[2 : 2+ephemeralLen]
	x, y := elliptic.Unmarshal(priv.Curve, ephemeralBytes)
	if x == nil {
		return nil, fmt.Errorf("%w: invalid ephemeral public key", interfaces.ErrDecryptionFailure)
	}

	xShared, _ := priv.Curve.ScalarMult(x, y, priv.D.Bytes())
	sharedSecret := sha256.Sum256(xShared.Bytes())

	aesBlock, err := aes.NewCipher(sharedSecret[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	share, err := aesGCM.Open(nil, enc.IV, enc.EncryptedData[2+ephemeralLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailure, err)
	}

	return share, nil
}
