package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipit/internal/storage"
	"clipit/pkg/types"
)

const previewWidth = 60

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clipboard history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, log, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}

			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			oldest, _ := cmd.Flags().GetBool("oldest-first")

			a, err := openApp(cmd.Context(), s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			rs, err := a.svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			entries := rs.Sort(storage.FieldID, !oldest).All()
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if asJSON {
				return writeEntriesJSON(cmd.OutOrStdout(), entries)
			}
			return writeEntriesTable(cmd.OutOrStdout(), entries)
		},
	}

	f := cmd.Flags()
	f.String("kind", "", "only entries of this kind: text|url|mail|color|image")
	f.String("payload", "", "only entries with exactly this payload")
	f.Int("limit", 20, "maximum number of entries (0 for all)")
	f.Bool("oldest-first", false, "list in capture order")
	f.Bool("json", false, "print JSON")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one entry's payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, _, log, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.svc.FetchEntryByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), entry.Display())
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete entries",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			s, _, log, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range ids {
				entry, err := a.svc.FetchEntryByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := a.svc.DeleteEntry(cmd.Context(), entry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			}
			return nil
		},
	}
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete the whole history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, log, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.svc.Purge(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.flush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d %s\n", n, plural(n, "entry", "entries"))
			return nil
		},
	}
}

func filterFromFlags(cmd *cobra.Command) (storage.Filter, error) {
	var f storage.Filter
	if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
		k, err := types.ParseKind(strings.ToLower(kind))
		if err != nil {
			return f, err
		}
		f.Kind = k
	}
	f.Payload, _ = cmd.Flags().GetString("payload")
	return f, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeEntriesJSON(w io.Writer, entries []types.Entry) error {
	if entries == nil {
		entries = []types.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writeEntriesTable(w io.Writer, entries []types.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCAPTURED\tCONTENT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Kind, humanize.Time(e.Time()), preview(e, previewWidth))
	}
	return tw.Flush()
}

// preview flattens an entry to a single line of at most width runes
func preview(e types.Entry, width int) string {
	s := strings.Join(strings.Fields(e.Display()), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
