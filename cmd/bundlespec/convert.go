package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/descriptor"
)

func newConvertCommand(a *app) *cobra.Command {
	var (
		to     string
		output string
	)
	cmd := &cobra.Command{
		Use:   "convert <descriptor>",
		Short: "Rewrite a descriptor in another format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := descriptor.ParseFormat(to)
			if err != nil {
				return err
			}
			spec, err := descriptor.Read(args[0])
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := descriptor.Encode(&buf, spec, format); err != nil {
				return err
			}
			if output == "" {
				_, err := a.stdout.Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			a.logger.Info("📝 Wrote descriptor", "path", output, "format", format)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target format (json, yaml, toml, cue)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
