package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cinefm/backend/internal/config"
	"cinefm/backend/internal/files"
	"cinefm/backend/internal/users"
)

func newLsCmd(root *rootOptions) *cobra.Command {
	var (
		hidden bool
		parent bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ls <dir>",
		Short: "Print a directory enumeration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd, config.Overrides{})
			if err != nil {
				return err
			}
			table, err := users.Load(cfg.PasswdPath)
			if err != nil {
				logger.Debug().Err(err).Msg("no passwd table")
				table = users.NewTable(nil)
			}

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			entries, err := files.NewEnumerator(table, logger).List(dir, files.ListOptions{
				IncludeParent: parent,
				IncludeHidden: hidden || cfg.ShowHidden,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Type, e.Perms, e.User, e.Size, e.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&hidden, "hidden", "a", false, "include dotfiles")
	cmd.Flags().BoolVar(&parent, "parent", false, "include the '..' entry")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}
