package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bundlespec",
		Short: "Validate bundle descriptors and package them into executables",
		Long: `bundlespec loads a bundle descriptor (JSON, YAML, TOML or CUE), checks it
before any packaging work begins, and hands it to a packaging driver.

Settings come from flags, BUNDLESPEC_* environment variables, and an
optional bundlespec.{yaml,toml,json} in the working directory or the user
config directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error, json:<level>)")
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./bundlespec.{yaml,toml,json})")

	root.AddCommand(
		newValidateCommand(a),
		newBuildCommand(a),
		newInspectCommand(a),
		newVerifyCommand(a),
		newConvertCommand(a),
		newKeygenCommand(a),
		newVersionCommand(a),
	)
	return root
}
