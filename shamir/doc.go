// Package shamir implements Shamir's Secret Sharing over GF(2^8).
//
// A secret is split byte-wise: each byte becomes the constant term of a
// random polynomial of degree k-1, evaluated at the non-zero x-coordinates
// 1..n to produce n shares. Any k shares recover the secret exactly through
// Lagrange interpolation at x=0; any k-1 shares reveal nothing about it.
//
// The field uses the AES reduction polynomial (0x11B), and shares carry a
// SHA-256 commitment of the original secret. The commitment is an integrity
// aid, not a confidentiality mechanism: it lets Combine reject shares from
// different splits or corrupted share data instead of returning a wrong
// secret that only fails much later, when it decrypts nothing.
//
// The share count is capped at interfaces.MaxTrustees. That cap is a
// product decision about plausible trustee sets, not a limit of the field:
// GF(2^8) supports up to 255 shares.
package shamir
