// Package recoverykit builds printable self-recovery bundles for vault
// owners. The vault master key is split into a 3-of-5 template by default and
// every share is wrapped independently under the owner's recovery passphrase
// with PBKDF2-SHA-256, so individual pages of a printed kit can be stored in
// separate locations without weakening the rest.
package recoverykit
