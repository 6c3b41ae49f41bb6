package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipit/internal/export"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as markdown day notes",
		Long: `Writes one markdown note per capture day into --dir, copying images to
an assets/ subdirectory. Point --dir at a folder inside an Obsidian vault to
browse the history there. Notes are regenerated on every run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, log, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")

			md, err := export.NewMarkdown(dir, log)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			rs, err := a.svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			n, err := md.Export(rs.All())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d %s to %s\n", n, plural(n, "note", "notes"), dir)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("dir", "", "destination directory")
	f.String("kind", "", "only entries of this kind")
	f.String("payload", "", "only entries with exactly this payload")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}
