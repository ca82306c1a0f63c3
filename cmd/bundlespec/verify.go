package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/bundle"
)

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <artifact>",
		Short: "Check the checksums and signature of a native bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := bundle.Verify(args[0], a.logger)
			if err != nil {
				return err
			}
			for _, c := range report.Checks {
				icon := successIcon
				if !c.OK {
					icon = errorIcon
				}
				fmt.Fprintf(a.stdout, "%s %s %s\n", icon, c.Name, labelStyle.Render(c.Detail))
			}
			if !report.OK() {
				fmt.Fprintf(a.stderr, "%s\n", errorStyle.Render("verification failed: "+args[0]))
				return &exitErr{code: exitError}
			}
			fmt.Fprintf(a.stdout, "%s %s verified\n", successIcon, pathStyle.Render(args[0]))
			return nil
		},
	}
}
