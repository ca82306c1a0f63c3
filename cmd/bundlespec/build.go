package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/descriptor"
	"github.com/provide-io/bundlespec/pkg/driver"
)

func newBuildCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <descriptor>",
		Short: "Validate a descriptor and package it with the configured driver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := descriptor.Load(args[0])
			if err != nil {
				return err
			}

			if dir := a.cfg.Native.OutputDir; dir != "" {
				if a.cfg.Native.OutputDir, err = filepath.Abs(dir); err != nil {
					return err
				}
			}

			d, err := driver.New(a.cfg.Driver, a.cfg.DriverConfig(a.logger))
			if err != nil {
				return err
			}
			a.logger.Info("🔨 Building", "descriptor", args[0], "driver", d.Name())

			res, err := d.Build(cmd.Context(), spec)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "%s Built %s with %s\n", successIcon, pathStyle.Render(res.Artifact), res.Driver)
			if len(res.External) > 0 {
				fmt.Fprintf(a.stdout, "  %s %v\n", labelStyle.Render("external modules:"), res.External)
			}
			return nil
		},
	}
	cmd.Flags().String("driver", "", "packaging driver ("+strings.Join(driver.Names(), ", ")+")")
	cmd.Flags().String("launcher", "", "launcher binary for the native driver")
	cmd.Flags().String("output-dir", "", "output directory for the native driver")
	cmd.Flags().Int64("timestamp", 0, "build time in Unix seconds for the native driver (default SOURCE_DATE_EPOCH or now)")
	return cmd
}
