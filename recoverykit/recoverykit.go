package recoverykit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/kms"
	"github.com/heirvault/escrow-backend/shamir"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KitVersion is bumped whenever the bundle layout changes.
	KitVersion = 1

	// DefaultThreshold and DefaultShares form the standard kit template.
	DefaultThreshold = 3
	DefaultShares    = 5

	pbkdf2Iterations = 600_000
	shareSaltSize    = 16
	shareNonceSize   = 12
)

const defaultInstructions = "Print this kit and store the pages in separate secure locations " +
	"(safe deposit box, attorney, trusted relative). Any " +
	"%d of the %d shares plus your recovery passphrase restore vault access. " +
	"Keep the passphrase out of the kit itself."

// WrappedShare is one password-protected master key share inside a kit.
// Share carries public split metadata; EncryptedShare is the PBKDF2-wrapped
// ciphertext with its per-share salt and nonce prepended.
type WrappedShare struct {
	Index          int    `json:"index"`
	Share          string `json:"share"`
	EncryptedShare string `json:"encryptedShare"`
}

// Kit is the owner's printable self-recovery bundle. Salt is the master key
// KDF salt; without it a recombined secret cannot be matched to the vault.
type Kit struct {
	UserID               string         `json:"userId"`
	Email                string         `json:"email"`
	VaultMasterKeyShares []WrappedShare `json:"vaultMasterKeyShares"`
	Salt                 string         `json:"salt"`
	CreatedAt            time.Time      `json:"createdAt"`
	Version              int            `json:"version"`
	Instructions         string         `json:"instructions"`
}

// Config controls kit generation. Zero values select the default 3-of-5
// template.
type Config struct {
	Threshold int
	Shares    int
}

// Service generates and restores recovery kits.
type Service struct {
	threshold int
	shares    int
}

// NewService creates a kit service with the given template.
func NewService(cfg Config) (*Service, error) {
	k, n := cfg.Threshold, cfg.Shares
	if k == 0 && n == 0 {
		k, n = DefaultThreshold, DefaultShares
	}
	if k < interfaces.MinThreshold {
		return nil, fmt.Errorf("%w: kit threshold %d below minimum %d", interfaces.ErrInvalidThreshold, k, interfaces.MinThreshold)
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d kit shares below threshold %d", interfaces.ErrInvalidConfig, n, k)
	}
	if n > interfaces.MaxTrustees {
		return nil, fmt.Errorf("%w: %d kit shares exceeds cap of %d", interfaces.ErrTooManyShares, n, interfaces.MaxTrustees)
	}
	return &Service{threshold: k, shares: n}, nil
}

// Generate splits the vault master key and wraps every share independently
// under the recovery passphrase. Each share gets its own salt and nonce, so
// leaking one wrapped share reveals nothing about the others.
func (s *Service) Generate(vmk *kms.VaultMasterKey, userID, email, passphrase string) (*Kit, error) {
	if vmk == nil || len(vmk.RawKey()) == 0 {
		return nil, fmt.Errorf("%w: missing vault master key", interfaces.ErrInvalidInput)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: recovery passphrase is required", interfaces.ErrInvalidInput)
	}

	shares, err := shamir.Split(vmk.RawKey(), s.threshold, s.shares)
	if err != nil {
		return nil, err
	}

	kit := &Kit{
		UserID:       userID,
		Email:        email,
		Salt:         base64.StdEncoding.EncodeToString(vmk.Salt()),
		CreatedAt:    time.Now().UTC(),
		Version:      KitVersion,
		Instructions: fmt.Sprintf(defaultInstructions, s.threshold, s.shares),
	}

	for i := range shares {
		blob, err := shares[i].MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize kit share %d: %w", shares[i].Index, err)
		}
		wrapped, err := wrapShare(blob, passphrase)
		wipe(blob)
		wipe(shares[i].Data)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap kit share %d: %w", shares[i].Index, err)
		}
		kit.VaultMasterKeyShares = append(kit.VaultMasterKeyShares, WrappedShare{
			Index:          shares[i].Index,
			Share:          shareLabel(shares[i].Index, s.threshold),
			EncryptedShare: wrapped,
		})
	}
	return kit, nil
}

// Restore unwraps the selected shares with the passphrase, recombines the
// secret, and re-derives the vault master key using the bundle salt. Indexes
// select shares from the kit; nil means all of them.
func Restore(kit *Kit, indexes []int, passphrase string) (*kms.VaultMasterKey, error) {
	if kit == nil {
		return nil, fmt.Errorf("%w: missing recovery kit", interfaces.ErrInvalidInput)
	}
	if kit.Version != KitVersion {
		return nil, fmt.Errorf("%w: unsupported kit version %d", interfaces.ErrInvalidInput, kit.Version)
	}

	selected := kit.VaultMasterKeyShares
	if indexes != nil {
		selected = nil
		for _, want := range indexes {
			found := false
			for _, ws := range kit.VaultMasterKeyShares {
				if ws.Index == want {
					selected = append(selected, ws)
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("%w: kit has no share with index %d", interfaces.ErrInvalidInput, want)
			}
		}
	}
	if len(selected) < interfaces.MinThreshold {
		return nil, fmt.Errorf("%w: %d shares selected, need at least %d", interfaces.ErrInsufficientShares, len(selected), interfaces.MinThreshold)
	}

	var shares []shamir.Share
	for _, ws := range selected {
		blob, err := unwrapShare(ws.EncryptedShare, passphrase)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", ws.Index, err)
		}
		var share shamir.Share
		err = share.UnmarshalBinary(blob)
		wipe(blob)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w: %v", ws.Index, interfaces.ErrDecryptionFailure, err)
		}
		shares = append(shares, share)
	}

	raw, err := shamir.Combine(shares)
	for i := range shares {
		wipe(shares[i].Data)
	}
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(kit.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt kit salt: %v", interfaces.ErrInvalidInput, err)
	}
	return kms.MasterKeyFromBytes(raw, salt)
}

// Marshal renders the kit as indented JSON for printing or file export.
func (k *Kit) Marshal() ([]byte, error) {
	return json.MarshalIndent(k, "", "  ")
}

// Unmarshal parses a kit previously rendered with Marshal.
func Unmarshal(data []byte) (*Kit, error) {
	var kit Kit
	if err := json.Unmarshal(data, &kit); err != nil {
		return nil, fmt.Errorf("%w: malformed recovery kit: %v", interfaces.ErrInvalidInput, err)
	}
	return &kit, nil
}

// wrapShare seals one share blob under a PBKDF2-derived key. Layout:
// salt(16) || nonce(12) || ciphertext, base64-encoded.
func wrapShare(blob []byte, passphrase string) (string, error) {
	salt := make([]byte, shareSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, shareNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	out := append(salt, nonce...)
	out = append(out, aead.Seal(nil, nonce, blob, nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func unwrapShare(encoded, passphrase string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed wrapped share: %v", interfaces.ErrInvalidInput, err)
	}
	if len(data) < shareSaltSize+shareNonceSize {
		return nil, fmt.Errorf("%w: wrapped share too short", interfaces.ErrInvalidInput)
	}
	salt := data[:shareSaltSize]
	nonce := data[shareSaltSize : shareSaltSize+shareNonceSize]
	ciphertext := data[shareSaltSize+shareNonceSize:]

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	blob, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailure, err)
	}
	return blob, nil
}

func shareLabel(index, threshold int) string {
	return fmt.Sprintf("share %d (any %d restore)", index, threshold)
}

func wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
