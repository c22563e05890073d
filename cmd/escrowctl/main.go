// The escrowctl command is the vault owner's tool: it manages the local
// keystore, derives the vault master key, sets up inheritance plans,
// generates recovery kits and encrypts vault items.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/heirvault/escrow-backend/api"
	"github.com/heirvault/escrow-backend/api/clients"
	"github.com/heirvault/escrow-backend/cmd/flags"
	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/keystore"
	"github.com/heirvault/escrow-backend/kms"
	"github.com/heirvault/escrow-backend/plan"
	"github.com/heirvault/escrow-backend/recoverykit"
	"github.com/heirvault/escrow-backend/storage"
)

// vmkSaltEntry is the keystore entry holding the master key derivation salt.
const vmkSaltEntry = "vmk-salt"

var passphraseFlag = &cli.StringFlag{
	Name:    "passphrase",
	Usage:   "vault passphrase",
	EnvVars: []string{"HEIRVAULT_PASSPHRASE"},
}

var planIDFlag = &cli.StringFlag{
	Name:     "plan-id",
	Required: true,
	Usage:    "inheritance plan identifier",
}

func main() {
	app := &cli.App{
		Name:  "escrowctl",
		Usage: "Manage vault escrow: keystore, plans, recovery kits and items",
		Flags: []cli.Flag{
			flags.KeystoreDirFlag,
			flags.PlanServiceURLFlag,
			flags.LogServiceFlagFn("escrowctl"),
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
		},
		Commands: []*cli.Command{
			initCommand,
			planCommand,
			kitCommand,
			itemCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func keystoreDir(cCtx *cli.Context) (string, error) {
	if dir := cCtx.String(flags.KeystoreDirFlag.Name); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".heirvault", "keystore"), nil
}

func openKeystore(cCtx *cli.Context, logger *slog.Logger) (*keystore.FileKeystore, error) {
	dir, err := keystoreDir(cCtx)
	if err != nil {
		return nil, err
	}

	ks := keystore.NewFileKeystore(dir, logger)
	if err := ks.Init(cCtx.Context); err != nil {
		return nil, err
	}
	if err := ks.Unlock(cCtx.String(passphraseFlag.Name)); err != nil {
		return nil, err
	}
	return ks, nil
}

// unlockMasterKey derives the vault master key from the passphrase and the
// salt stored at init time.
func unlockMasterKey(cCtx *cli.Context, ks *keystore.FileKeystore) (*kms.VaultMasterKey, error) {
	salt, err := ks.LoadKey(cCtx.Context, keystore.DomainOwner, vmkSaltEntry)
	if err != nil {
		if errors.Is(err, interfaces.ErrContentNotFound) {
			return nil, fmt.Errorf("vault not initialized, run 'escrowctl init' first: %w", err)
		}
		return nil, err
	}
	return kms.DeriveMasterKey(cCtx.String(passphraseFlag.Name), salt)
}

func planClient(cCtx *cli.Context) api.PlanProvider {
	return clients.NewPlanClient(cCtx.String(flags.PlanServiceURLFlag.Name))
}

var initCommand = &cli.Command{
	Name:  "init",
	Usage: "Initialize the local keystore and derive a fresh vault master key",
	Flags: []cli.Flag{passphraseFlag},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		ks, err := openKeystore(cCtx, logger)
		if err != nil {
			return err
		}

		if _, err := ks.LoadKey(cCtx.Context, keystore.DomainOwner, vmkSaltEntry); err == nil {
			return errors.New("keystore already initialized")
		}

		vmk, err := kms.DeriveMasterKey(cCtx.String(passphraseFlag.Name), nil)
		if err != nil {
			return err
		}
		defer vmk.Zero()

		if err := ks.StoreKey(cCtx.Context, keystore.DomainOwner, vmkSaltEntry, vmk.Salt()); err != nil {
			return err
		}

		logger.Info("Vault initialized")
		return nil
	},
}

// planFileConfig is the owner-authored plan definition. Trustee public keys
// are referenced by file so the config itself stays small and reviewable.
type planFileConfig struct {
	Name              string                       `json:"name"`
	KThreshold        int                          `json:"k_threshold"`
	WaitingPeriodDays int                          `json:"waiting_period_days"`
	OwnerID           string                       `json:"owner_id"`
	Trustees          []planFileTrustee            `json:"trustees"`
	Beneficiaries     []interfaces.BeneficiarySpec `json:"beneficiaries"`
	VaultItemIDs      []string                     `json:"vault_item_ids"`
}

type planFileTrustee struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	PublicKeyFile string `json:"public_key_file"`
}

func loadPlanConfig(path string) (plan.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return plan.Config{}, fmt.Errorf("could not read plan config: %w", err)
	}

	var fileCfg planFileConfig
	if err := json.Unmarshal(raw, &fileCfg); err != nil {
		return plan.Config{}, fmt.Errorf("could not parse plan config: %w", err)
	}

	cfg := plan.Config{
		Name:              fileCfg.Name,
		OwnerID:           fileCfg.OwnerID,
		KThreshold:        fileCfg.KThreshold,
		WaitingPeriodDays: fileCfg.WaitingPeriodDays,
		Beneficiaries:     fileCfg.Beneficiaries,
		VaultItemIDs:      fileCfg.VaultItemIDs,
	}
	for _, tr := range fileCfg.Trustees {
		pem, err := os.ReadFile(tr.PublicKeyFile)
		if err != nil {
			return plan.Config{}, fmt.Errorf("could not read public key for %s: %w", tr.Email, err)
		}
		cfg.Trustees = append(cfg.Trustees, interfaces.TrusteeSpec{
			Email:        tr.Email,
			Name:         tr.Name,
			PublicKeyPEM: pem,
		})
	}
	return cfg, nil
}

var planCommand = &cli.Command{
	Name:  "plan",
	Usage: "Manage inheritance plans",
	Subcommands: []*cli.Command{
		{
			Name:  "setup",
			Usage: "Split the master key and register a new plan",
			Flags: []cli.Flag{
				passphraseFlag,
				&cli.StringFlag{
					Name:     "config",
					Required: true,
					Usage:    "path to the JSON plan definition",
				},
			},
			Action: func(cCtx *cli.Context) error {
				logger := flags.SetupLogger(cCtx)

				cfg, err := loadPlanConfig(cCtx.String("config"))
				if err != nil {
					return err
				}

				ks, err := openKeystore(cCtx, logger)
				if err != nil {
					return err
				}
				vmk, err := unlockMasterKey(cCtx, ks)
				if err != nil {
					return err
				}
				defer vmk.Zero()

				client := planClient(cCtx)
				created, err := plan.NewService(client, logger).SetupPlan(cCtx.Context, vmk, cfg)
				if err != nil {
					return err
				}

				return json.NewEncoder(os.Stdout).Encode(created)
			},
		},
		{
			Name:  "update",
			Usage: "Re-split the master key and replace an active plan's configuration",
			Flags: []cli.Flag{
				passphraseFlag,
				planIDFlag,
				&cli.StringFlag{
					Name:     "config",
					Required: true,
					Usage:    "path to the JSON plan definition",
				},
			},
			Action: func(cCtx *cli.Context) error {
				logger := flags.SetupLogger(cCtx)

				cfg, err := loadPlanConfig(cCtx.String("config"))
				if err != nil {
					return err
				}

				ks, err := openKeystore(cCtx, logger)
				if err != nil {
					return err
				}
				vmk, err := unlockMasterKey(cCtx, ks)
				if err != nil {
					return err
				}
				defer vmk.Zero()

				client := planClient(cCtx)
				planID := interfaces.PlanID(cCtx.String(planIDFlag.Name))
				updated, err := plan.NewService(client, logger).UpdatePlan(cCtx.Context, vmk, planID, cfg)
				if err != nil {
					return err
				}

				return json.NewEncoder(os.Stdout).Encode(updated)
			},
		},
		{
			Name:  "status",
			Usage: "Show a plan with derived approval progress",
			Flags: []cli.Flag{planIDFlag},
			Action: func(cCtx *cli.Context) error {
				client := planClient(cCtx)
				view, err := client.GetPlanStatus(cCtx.Context, interfaces.PlanID(cCtx.String(planIDFlag.Name)))
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(view)
			},
		},
		{
			Name:  "cancel",
			Usage: "Cancel an active plan",
			Flags: []cli.Flag{planIDFlag},
			Action: func(cCtx *cli.Context) error {
				client := planClient(cCtx)
				return client.CancelPlan(cCtx.Context, interfaces.PlanID(cCtx.String(planIDFlag.Name)))
			},
		},
		{
			Name:  "delete",
			Usage: "Delete an active or cancelled plan",
			Flags: []cli.Flag{planIDFlag},
			Action: func(cCtx *cli.Context) error {
				client := planClient(cCtx)
				return client.DeletePlan(cCtx.Context, interfaces.PlanID(cCtx.String(planIDFlag.Name)))
			},
		},
	},
}

var kitCommand = &cli.Command{
	Name:  "kit",
	Usage: "Generate and verify owner recovery kits",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "Generate a password-protected recovery kit",
			Flags: []cli.Flag{
				passphraseFlag,
				flags.StorageURIFlag,
				&cli.StringFlag{
					Name:     "out",
					Required: true,
					Usage:    "path to write the recovery kit JSON",
				},
				&cli.StringFlag{
					Name:  "user-id",
					Value: "owner",
					Usage: "owner identifier embedded in the kit",
				},
				&cli.StringFlag{
					Name:  "email",
					Usage: "owner email embedded in the kit",
				},
				&cli.IntFlag{
					Name:  "threshold",
					Value: recoverykit.DefaultThreshold,
					Usage: "shares required to restore the master key",
				},
				&cli.IntFlag{
					Name:  "shares",
					Value: recoverykit.DefaultShares,
					Usage: "total shares in the kit",
				},
			},
			Action: func(cCtx *cli.Context) error {
				logger := flags.SetupLogger(cCtx)

				ks, err := openKeystore(cCtx, logger)
				if err != nil {
					return err
				}
				vmk, err := unlockMasterKey(cCtx, ks)
				if err != nil {
					return err
				}
				defer vmk.Zero()

				svc, err := recoverykit.NewService(recoverykit.Config{
					Threshold: cCtx.Int("threshold"),
					Shares:    cCtx.Int("shares"),
				})
				if err != nil {
					return err
				}

				kit, err := svc.Generate(vmk, cCtx.String("user-id"), cCtx.String("email"), cCtx.String(passphraseFlag.Name))
				if err != nil {
					return err
				}

				data, err := kit.Marshal()
				if err != nil {
					return err
				}

				outPath := cCtx.String("out")
				if err := os.WriteFile(outPath, data, 0600); err != nil {
					return fmt.Errorf("could not write recovery kit: %w", err)
				}
				logger.Info("Recovery kit written", "path", outPath, "shares", cCtx.Int("shares"), "threshold", cCtx.Int("threshold"))

				return replicateKit(cCtx.Context, logger, cCtx.StringSlice(flags.StorageURIFlag.Name), data)
			},
		},
		{
			Name:  "restore",
			Usage: "Restore the master key from a recovery kit",
			Flags: []cli.Flag{
				passphraseFlag,
				&cli.StringFlag{
					Name:     "kit",
					Required: true,
					Usage:    "path to the recovery kit JSON",
				},
				&cli.IntSliceFlag{
					Name:  "share-index",
					Usage: "share indexes to use; all shares when omitted",
				},
				&cli.BoolFlag{
					Name:  "verify",
					Usage: "compare the restored key against the local keystore's key",
				},
			},
			Action: func(cCtx *cli.Context) error {
				logger := flags.SetupLogger(cCtx)

				raw, err := os.ReadFile(cCtx.String("kit"))
				if err != nil {
					return fmt.Errorf("could not read recovery kit: %w", err)
				}
				kit, err := recoverykit.Unmarshal(raw)
				if err != nil {
					return err
				}

				restored, err := recoverykit.Restore(kit, cCtx.IntSlice("share-index"), cCtx.String(passphraseFlag.Name))
				if err != nil {
					return err
				}
				defer restored.Zero()

				logger.Info("Master key restored from recovery kit", "userID", kit.UserID)

				if cCtx.Bool("verify") {
					ks, err := openKeystore(cCtx, logger)
					if err != nil {
						return err
					}
					local, err := unlockMasterKey(cCtx, ks)
					if err != nil {
						return err
					}
					defer local.Zero()

					if !restored.Equal(local) {
						return errors.New("restored key does not match the local vault master key")
					}
					logger.Info("Restored key matches the local vault master key")
				}
				return nil
			},
		},
	},
}

// replicateKit stores the kit ciphertext on every configured backend through
// a single multi-backend with fallback semantics.
func replicateKit(ctx context.Context, logger *slog.Logger, uris []string, data []byte) error {
	if len(uris) == 0 {
		return nil
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		locations = append(locations, interfaces.StorageBackendLocation(uri))
	}

	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		return err
	}

	id, err := backend.Store(ctx, data, interfaces.RecoveryKitType)
	if err != nil {
		return err
	}
	logger.Info("Recovery kit replicated", "contentID", id.String(), "backends", len(uris))
	return nil
}

var itemCommand = &cli.Command{
	Name:  "item",
	Usage: "Encrypt and decrypt vault items under the master key",
	Subcommands: []*cli.Command{
		{
			Name:  "encrypt",
			Usage: "Encrypt a file into a sealed vault item",
			Flags: []cli.Flag{
				passphraseFlag,
				&cli.StringFlag{Name: "in", Required: true, Usage: "plaintext input file"},
				&cli.StringFlag{Name: "out", Required: true, Usage: "sealed item output file"},
			},
			Action: func(cCtx *cli.Context) error {
				logger := flags.SetupLogger(cCtx)

				ks, err := openKeystore(cCtx, logger)
				if err != nil {
					return err
				}
				vmk, err := unlockMasterKey(cCtx, ks)
				if err != nil {
					return err
				}
				defer vmk.Zero()

				manager, err := kms.NewContentKeyManager(vmk)
				if err != nil {
					return err
				}

				plaintext, err := os.ReadFile(cCtx.String("in"))
				if err != nil {
					return fmt.Errorf("could not read input: %w", err)
				}

				item, err := manager.EncryptItem(plaintext)
				if err != nil {
					return err
				}

				data, err := json.Marshal(item)
				if err != nil {
					return err
				}
				return os.WriteFile(cCtx.String("out"), data, 0600)
			},
		},
		{
			Name:  "decrypt",
			Usage: "Decrypt a sealed vault item",
			Flags: []cli.Flag{
				passphraseFlag,
				&cli.StringFlag{Name: "in", Required: true, Usage: "sealed item input file"},
				&cli.StringFlag{Name: "out", Required: true, Usage: "plaintext output file"},
			},
			Action: func(cCtx *cli.Context) error {
				logger := flags.SetupLogger(cCtx)

				ks, err := openKeystore(cCtx, logger)
				if err != nil {
					return err
				}
				vmk, err := unlockMasterKey(cCtx, ks)
				if err != nil {
					return err
				}
				defer vmk.Zero()

				manager, err := kms.NewContentKeyManager(vmk)
				if err != nil {
					return err
				}

				raw, err := os.ReadFile(cCtx.String("in"))
				if err != nil {
					return fmt.Errorf("could not read input: %w", err)
				}

				var item kms.EncryptedItem
				if err := json.Unmarshal(raw, &item); err != nil {
					return fmt.Errorf("could not parse sealed item: %w", err)
				}

				plaintext, err := manager.DecryptItem(&item)
				if err != nil {
					return err
				}
				return os.WriteFile(cCtx.String("out"), plaintext, 0600)
			},
		},
	},
}
