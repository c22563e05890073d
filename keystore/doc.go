// Package keystore provides local custody of private key material for vault
// owners and trustees. Keys are partitioned into explicit storage domains so
// that owner secrets and trustee secrets never share a namespace, and the
// keystore exposes a full lifecycle: initialization, passphrase unlock, and
// destructive wipe.
//
// The file-backed implementation seals each entry with AES-GCM under a key
// derived from the unlock passphrase via Argon2id. It is meant for CLI and
// single-host deployments; platform keychains or HSM-backed stores can be
// swapped in behind the same interface.
package keystore
