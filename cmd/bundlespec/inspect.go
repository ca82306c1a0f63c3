package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/provide-io/bundlespec/pkg/bundle"
)

func newInspectCommand(a *app) *cobra.Command {
	var rawJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Show the metadata and slots of a native bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := bundle.Open(args[0], bundle.WithReaderLogger(a.logger))
			if err != nil {
				return err
			}
			defer r.Close()

			if rawJSON {
				data, err := r.MetadataJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}

			md, err := r.Metadata()
			if err != nil {
				return err
			}
			printMetadata(a, r.Index(), md)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "json", false, "print the raw metadata JSON")
	return cmd
}

func printMetadata(a *app, idx *bundle.Index, md *bundle.Metadata) {
	w := a.stdout
	title := md.Package.Name
	if md.Package.Version != "" {
		title += " " + md.Package.Version
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label+":")), value)
		}
	}
	field("format", md.Format)
	entry := md.Entry.Path
	if md.Entry.Interpreter != "" {
		entry += " (" + md.Entry.Interpreter + ")"
	}
	field("entry", entry)

	var flags []string
	for _, f := range []struct {
		flag uint32
		name string
	}{
		{bundle.FlagConsole, "console"},
		{bundle.FlagCompressed, "compressed"},
		{bundle.FlagDebug, "debug"},
		{bundle.FlagStripped, "stripped"},
		{bundle.FlagSigned, "signed"},
	} {
		if idx.Has(f.flag) {
			flags = append(flags, f.name)
		}
	}
	field("flags", strings.Join(flags, ", "))
	field("bundled", strings.Join(md.Modules.Bundled, ", "))
	field("external", strings.Join(md.Modules.External, ", "))
	field("excluded", strings.Join(md.Modules.Excluded, ", "))
	if md.Launcher != nil {
		field("launcher", fmt.Sprintf("%d bytes %s", md.Launcher.Size, md.Launcher.Subsystem))
	}
	if md.Build != nil {
		field("built", md.Build.Timestamp+" by "+md.Build.Tool+" "+md.Build.ToolVersion)
	}

	fmt.Fprintf(w, "  %s\n", labelStyle.Render(fmt.Sprintf("slots (%d):", len(md.Slots))))
	for _, s := range md.Slots {
		fmt.Fprintf(w, "    %2d  %-7s %-10s %8d  %s\n", s.Index, s.Kind, s.Operations, s.Size, pathStyle.Render(s.Target))
	}
}
