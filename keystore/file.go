package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/heirvault/escrow-backend/interfaces"
	"golang.org/x/crypto/argon2"
)

const (
	saltFileName = ".keystore-salt"
	saltSize     = 16

	// Same Argon2id cost profile as the vault master key derivation.
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

// FileKeystore stores key material as individual AES-GCM sealed files under
// a base directory, one subdirectory per custody domain. The at-rest key is
// derived from the unlock passphrase with Argon2id over a per-keystore salt.
type FileKeystore struct {
	mu      sync.RWMutex
	baseDir string
	log     *slog.Logger
	key     []byte // nil while locked
}

// NewFileKeystore creates a file-backed keystore rooted at baseDir.
func NewFileKeystore(baseDir string, log *slog.Logger) *FileKeystore {
	return &FileKeystore{baseDir: baseDir, log: log}
}

// Init creates the domain directories and the keystore salt if absent.
func (ks *FileKeystore) Init(ctx context.Context) error {
	for _, domain := range []Domain{DomainOwner, DomainTrustee} {
		if err := os.MkdirAll(filepath.Join(ks.baseDir, string(domain)), 0700); err != nil {
			return fmt.Errorf("failed to create keystore directory: %w", err)
		}
	}

	saltPath := filepath.Join(ks.baseDir, saltFileName)
	if _, err := os.Stat(saltPath); os.IsNotExist(err) {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate keystore salt: %w", err)
		}
		if err := os.WriteFile(saltPath, salt, 0600); err != nil {
			return fmt.Errorf("failed to write keystore salt: %w", err)
		}
		ks.log.Debug("Initialized new keystore", slog.String("baseDir", ks.baseDir))
	}

	return nil
}

// Unlock derives the at-rest key from the passphrase. A wrong passphrase
// does not fail here; subsequent LoadKey calls fail their AEAD check.
func (ks *FileKeystore) Unlock(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: empty passphrase", interfaces.ErrInvalidInput)
	}

	salt, err := os.ReadFile(filepath.Join(ks.baseDir, saltFileName))
	if err != nil {
		return fmt.Errorf("keystore not initialized: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, 32)

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.key = key
	return nil
}

// IsUnlocked reports whether the keystore key is in memory.
func (ks *FileKeystore) IsUnlocked() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.key != nil
}

// StoreKey seals key material and writes it under the domain directory.
func (ks *FileKeystore) StoreKey(ctx context.Context, domain Domain, id string, key []byte) error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.key == nil {
		return interfaces.ErrKeystoreLocked
	}

	path, err := ks.entryPath(domain, id)
	if err != nil {
		return err
	}

	sealed, err := sealGCM(ks.key, key)
	if err != nil {
		return fmt.Errorf("failed to seal key material: %w", err)
	}

	if err := os.WriteFile(path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	ks.log.Debug("Stored key material",
		slog.String("domain", string(domain)),
		slog.String("id", id))
	return nil
}

// LoadKey reads and opens key material from the domain directory.
func (ks *FileKeystore) LoadKey(ctx context.Context, domain Domain, id string) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.key == nil {
		return nil, interfaces.ErrKeystoreLocked
	}

	path, err := ks.entryPath(domain, id)
	if err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := openGCM(ks.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailure, err)
	}
	return key, nil
}

// DeleteKey removes one stored entry. Missing entries are not an error.
func (ks *FileKeystore) DeleteKey(ctx context.Context, domain Domain, id string) error {
	path, err := ks.entryPath(domain, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Wipe removes all stored key material and locks the keystore. The salt is
// removed too, so the keystore must be re-initialized before reuse.
func (ks *FileKeystore) Wipe(ctx context.Context) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for i := range ks.key {
		ks.key[i] = 0
	}
	ks.key = nil

	if err := os.RemoveAll(ks.baseDir); err != nil {
		return fmt.Errorf("failed to wipe keystore: %w", err)
	}

	ks.log.Info("Keystore wiped", slog.String("baseDir", ks.baseDir))
	return nil
}

// entryPath validates the identifier and resolves the file path for a key.
func (ks *FileKeystore) entryPath(domain Domain, id string) (string, error) {
	if domain != DomainOwner && domain != DomainTrustee {
		return "", fmt.Errorf("%w: unknown keystore domain %q", interfaces.ErrInvalidInput, domain)
	}
	if id == "" || strings.ContainsAny(id, "/\\") || id != filepath.Base(id) {
		return "", fmt.Errorf("%w: invalid key identifier %q", interfaces.ErrInvalidInput, id)
	}
	return filepath.Join(ks.baseDir, string(domain), id+".key"), nil
}

func sealGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func openGCM(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed blob shorter than nonce")
	}
	return aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
}
