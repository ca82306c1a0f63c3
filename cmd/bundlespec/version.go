package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/bundle"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "%s %s\n", bundle.ToolName, bundle.ToolVersion)
			fmt.Fprintf(a.stdout, "format: %s\n", bundle.FormatName)
			fmt.Fprintf(a.stdout, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" || s.Key == "vcs.time" {
						fmt.Fprintf(a.stdout, "%s: %s\n", s.Key, s.Value)
					}
				}
			}
		},
	}
}
