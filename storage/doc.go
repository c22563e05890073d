// Package storage provides content-addressed storage for recovery kits and
// encrypted trustee shares, with pluggable backends.
//
// The package offers a unified interface for storing and retrieving content
// identified by SHA-256 hash across multiple storage backends:
//
//   - File system storage for local deployments and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized replication
//   - Vault storage for policy-controlled, audited access
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/escrow/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - vault://vault.example.com:8200/secret/escrow?tls=false
//
// # Content Addressing
//
// Content is stored and retrieved using content addressing, where the content
// identifier is the SHA-256 hash of the data. The two content types (recovery
// kits and encrypted shares) live in separate namespaces within each backend.
//
// Everything that reaches this package is already encrypted upstream: kits
// are PBKDF2-wrapped, trustee shares are envelope-encrypted. Backends provide
// durability and replication, never confidentiality.
//
// # Multi-Backend Redundancy
//
// MultiStorageBackend aggregates several backends. Store writes to every
// available backend; Fetch returns content from the first backend that holds
// it. A kit therefore survives the loss of all but one replica location.
//
// StorageBackendFactory creates single backends from location URIs and
// multi-backends from URI lists, skipping (with a warning) any URI it cannot
// turn into a working backend.
package storage
