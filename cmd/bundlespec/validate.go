package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/descriptor"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Check a bundle descriptor without packaging it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := descriptor.Load(args[0])
			if err != nil {
				a.logger.Debug("❌ Descriptor rejected", "path", args[0], "error", err)
				return err
			}
			a.logger.Info("✅ Descriptor valid", "path", args[0], "entry", spec.EntryPoint())

			fmt.Fprintf(a.stdout, "%s %s is valid\n", successIcon, pathStyle.Render(args[0]))
			fmt.Fprintf(a.stdout, "  %s %s\n", labelStyle.Render("entry point:"), spec.EntryPoint())
			fmt.Fprintf(a.stdout, "  %s %s\n", labelStyle.Render("artifact:   "), spec.ArtifactName())
			fmt.Fprintf(a.stdout, "  %s %d data files, %d binaries, %d forced modules\n",
				labelStyle.Render("resources:  "), len(spec.DataFiles), len(spec.Binaries), len(spec.Modules()))
			return nil
		},
	}
}
