// Package cryptoutils provides the asymmetric cryptography used to protect
// Shamir shares in transit and at rest.
//
// # Trustee Keys
//
// Each trustee holds an ECDSA P-256 key pair. Public keys travel as PEM and
// are validated on import; private keys never leave the trustee's custody
// (the keystore package provides the at-rest abstraction).
//
// # Share Envelope Encryption
//
// Shares are encrypted with ECIES: an ephemeral ECDH key agreement derives a
// per-share AES-256 key, and AES-GCM provides authenticated encryption. This
// is envelope encryption by construction: the asymmetric layer only ever
// wraps a symmetric key, so shares of any length are supported, unlike direct
// RSA-OAEP encryption which is bounded by the modulus size.
//
// Decryption failures are deliberately uniform: a wrong key, a corrupted
// ciphertext and a tampered IV all return interfaces.ErrDecryptionFailure.
package cryptoutils
