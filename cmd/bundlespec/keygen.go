package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/bundle"
)

func newKeygenCommand(a *app) *cobra.Command {
	var (
		privatePath string
		publicPath  string
		seed        string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Write an Ed25519 key pair for sealing native bundles",
		Long: `keygen writes a PKCS#8 private key and a PKIX public key as PEM files.
Point native.private_key and native.public_key at them to sign every build
with the same key. --seed derives the pair deterministically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				for _, p := range []string{privatePath, publicPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s already exists (use --force to overwrite)", p)
					}
				}
			}

			signer, err := bundle.NewSigner(bundle.KeyConfig{Seed: seed})
			if err != nil {
				return err
			}
			if err := bundle.WriteKeyFiles(signer.Private, privatePath, publicPath); err != nil {
				return fmt.Errorf("failed to write key pair: %w", err)
			}
			a.logger.Info("🔑 Wrote key pair", "private", privatePath, "public", publicPath, "source", signer.Source)

			fmt.Fprintf(a.stdout, "%s Wrote %s and %s\n", successIcon,
				pathStyle.Render(privatePath), pathStyle.Render(publicPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&privatePath, "private", "bundlespec.key", "private key output path")
	cmd.Flags().StringVar(&publicPath, "public", "bundlespec.pub", "public key output path")
	cmd.Flags().StringVar(&seed, "seed", "", "derive the key pair from a seed instead of generating one")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	return cmd
}
