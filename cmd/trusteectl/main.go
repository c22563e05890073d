// The trusteectl command is the trustee and beneficiary tool: it generates
// trustee key pairs, records approvals, decrypts released shares and
// reconstructs the vault master key once a plan has triggered.
package main

import (
	"encoding/hex"
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
	"github.com/heirvault/escrow-backend/cryptoutils"
	"github.com/heirvault/escrow-backend/interfaces"
	"github.com/heirvault/escrow-backend/keystore"
	"github.com/heirvault/escrow-backend/kms"
	"github.com/heirvault/escrow-backend/plan"
	"github.com/heirvault/escrow-backend/shamir"
)

var passphraseFlag = &cli.StringFlag{
	Name:    "passphrase",
	Usage:   "keystore passphrase",
	EnvVars: []string{"HEIRVAULT_PASSPHRASE"},
}

var planIDFlag = &cli.StringFlag{
	Name:     "plan-id",
	Required: true,
	Usage:    "inheritance plan identifier",
}

var emailFlag = &cli.StringFlag{
	Name:     "email",
	Required: true,
	Usage:    "trustee email, also the keystore entry for the private key",
}

func main() {
	app := &cli.App{
		Name:  "trusteectl",
		Usage: "Trustee and beneficiary operations for inheritance plans",
		Flags: []cli.Flag{
			flags.KeystoreDirFlag,
			flags.PlanServiceURLFlag,
			flags.LogServiceFlagFn("trusteectl"),
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
		},
		Commands: []*cli.Command{
			keygenCommand,
			approveCommand,
			statusCommand,
			triggerCommand,
			decryptShareCommand,
			recoverCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openKeystore(cCtx *cli.Context, logger *slog.Logger) (*keystore.FileKeystore, error) {
	dir := cCtx.String(flags.KeystoreDirFlag.Name)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".heirvault", "keystore")
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

func planClient(cCtx *cli.Context) api.PlanProvider {
	return clients.NewPlanClient(cCtx.String(flags.PlanServiceURLFlag.Name))
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "Generate a trustee key pair, keep the private key in the keystore",
	Flags: []cli.Flag{
		passphraseFlag,
		emailFlag,
		&cli.StringFlag{
			Name:     "pubkey-out",
			Required: true,
			Usage:    "path to write the public key PEM for the vault owner",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		ks, err := openKeystore(cCtx, logger)
		if err != nil {
			return err
		}

		email := cCtx.String(emailFlag.Name)
		if _, err := ks.LoadKey(cCtx.Context, keystore.DomainTrustee, email); err == nil {
			return fmt.Errorf("a key for %s already exists in the keystore", email)
		}

		pair, err := cryptoutils.GenerateTrusteeKeyPair()
		if err != nil {
			return err
		}

		if err := ks.StoreKey(cCtx.Context, keystore.DomainTrustee, email, pair.PrivateKeyPEM); err != nil {
			return err
		}

		outPath := cCtx.String("pubkey-out")
		if err := os.WriteFile(outPath, pair.PublicKeyPEM, 0644); err != nil {
			return fmt.Errorf("could not write public key: %w", err)
		}

		logger.Info("Trustee key pair generated",
			"email", email,
			"fingerprint", pair.PublicKeyPEM.Fingerprint(),
			"pubkeyPath", outPath)
		return nil
	},
}

var approveCommand = &cli.Command{
	Name:  "approve",
	Usage: "Record this trustee's approval on a plan",
	Flags: []cli.Flag{
		planIDFlag,
		&cli.StringFlag{
			Name:     "trustee-id",
			Required: true,
			Usage:    "trustee identifier assigned at plan creation",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		planID := interfaces.PlanID(cCtx.String(planIDFlag.Name))
		trusteeID := interfaces.TrusteeID(cCtx.String("trustee-id"))
		if err := planClient(cCtx).ApprovePlan(cCtx.Context, planID, trusteeID); err != nil {
			return err
		}

		logger.Info("Approval recorded", "planID", planID, "trusteeID", trusteeID)
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Show a plan with derived approval progress",
	Flags: []cli.Flag{planIDFlag},
	Action: func(cCtx *cli.Context) error {
		view, err := planClient(cCtx).GetPlanStatus(cCtx.Context, interfaces.PlanID(cCtx.String(planIDFlag.Name)))
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(view)
	},
}

var triggerCommand = &cli.Command{
	Name:  "trigger",
	Usage: "Request the triggered transition once quorum and waiting period allow it",
	Flags: []cli.Flag{
		planIDFlag,
		&cli.StringFlag{
			Name:     "reason",
			Required: true,
			Usage:    "audit reason for the trigger",
		},
		&cli.BoolFlag{
			Name:  "emergency-override",
			Usage: "waive the waiting period; the approval quorum still applies",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		planID := interfaces.PlanID(cCtx.String(planIDFlag.Name))
		err := planClient(cCtx).TriggerInheritance(cCtx.Context, planID, interfaces.TriggerRequest{
			Reason:            cCtx.String("reason"),
			EmergencyOverride: cCtx.Bool("emergency-override"),
		})
		if err != nil {
			return err
		}

		logger.Warn("Inheritance triggered", "planID", planID)
		return nil
	},
}

// decryptedShareFile is the on-disk form of one recovered share, handed from
// a trustee to the beneficiary collecting shares.
type decryptedShareFile struct {
	PlanID string `json:"plan_id"`
	Share  []byte `json:"share"`
}

var decryptShareCommand = &cli.Command{
	Name:  "decrypt-share",
	Usage: "Decrypt this trustee's share of a triggered plan",
	Flags: []cli.Flag{
		passphraseFlag,
		planIDFlag,
		emailFlag,
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "path to write the decrypted share",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		ks, err := openKeystore(cCtx, logger)
		if err != nil {
			return err
		}

		email := cCtx.String(emailFlag.Name)
		privPEM, err := ks.LoadKey(cCtx.Context, keystore.DomainTrustee, email)
		if err != nil {
			return fmt.Errorf("could not load private key for %s: %w", email, err)
		}
		priv, err := cryptoutils.NewTrusteePrivkey(privPEM)
		if err != nil {
			return err
		}

		planID := interfaces.PlanID(cCtx.String(planIDFlag.Name))
		shares, err := planClient(cCtx).GetTrusteeShares(cCtx.Context, planID)
		if err != nil {
			return err
		}

		for _, enc := range shares {
			if enc.TrusteeEmail != email {
				continue
			}
			share, err := plan.DecryptTrusteeShare(enc, priv)
			if err != nil {
				return err
			}

			blob, err := share.MarshalBinary()
			if err != nil {
				return err
			}
			data, err := json.Marshal(decryptedShareFile{PlanID: planID.String(), Share: blob})
			if err != nil {
				return err
			}
			if err := os.WriteFile(cCtx.String("out"), data, 0600); err != nil {
				return fmt.Errorf("could not write share: %w", err)
			}

			logger.Info("Share decrypted", "planID", planID, "shareIndex", share.Index)
			return nil
		}
		return fmt.Errorf("%w: no share for %s on plan %s", interfaces.ErrTrusteeNotFound, email, planID)
	},
}

var recoverCommand = &cli.Command{
	Name:  "recover",
	Usage: "Reconstruct the vault master key from decrypted shares",
	Flags: []cli.Flag{
		planIDFlag,
		&cli.StringSliceFlag{
			Name:     "share",
			Required: true,
			Usage:    "path to a decrypted share file; repeat per share",
		},
		&cli.StringFlag{
			Name:     "salt-hex",
			Required: true,
			Usage:    "hex-encoded master key salt from the owner's recovery kit",
		},
		&cli.StringFlag{
			Name:  "item",
			Usage: "sealed vault item to decrypt with the reconstructed key",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "plaintext output path for the decrypted item",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		planID := interfaces.PlanID(cCtx.String(planIDFlag.Name))

		salt, err := hex.DecodeString(cCtx.String("salt-hex"))
		if err != nil {
			return fmt.Errorf("invalid salt: %w", err)
		}

		var shares []shamir.Share
		for _, path := range cCtx.StringSlice("share") {
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("could not read share file %s: %w", path, err)
			}
			var file decryptedShareFile
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("could not parse share file %s: %w", path, err)
			}
			if file.PlanID != planID.String() {
				return fmt.Errorf("share file %s belongs to plan %s", path, file.PlanID)
			}
			var share shamir.Share
			if err := share.UnmarshalBinary(file.Share); err != nil {
				return fmt.Errorf("invalid share in %s: %w", path, err)
			}
			shares = append(shares, share)
		}

		svc := plan.NewService(planClient(cCtx), logger)
		vmk, err := svc.RecoverMasterKey(cCtx.Context, planID, shares, salt)
		if err != nil {
			return err
		}
		defer vmk.Zero()

		logger.Info("Vault master key reconstructed", "planID", planID, "shares", len(shares))

		itemPath := cCtx.String("item")
		if itemPath == "" {
			return nil
		}
		if cCtx.String("out") == "" {
			return errors.New("--out is required with --item")
		}

		manager, err := kms.NewContentKeyManager(vmk)
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(itemPath)
		if err != nil {
			return fmt.Errorf("could not read sealed item: %w", err)
		}
		var item kms.EncryptedItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("could not parse sealed item: %w", err)
		}

		plaintext, err := manager.DecryptItem(&item)
		if err != nil {
			return err
		}
		if err := os.WriteFile(cCtx.String("out"), plaintext, 0600); err != nil {
			return fmt.Errorf("could not write plaintext: %w", err)
		}

		logger.Info("Vault item decrypted", "item", itemPath)
		return nil
	},
}
