package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/formflat"
	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/storage"
)

func (c *CLI) newPullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <form-id>",
		Short: "Download a form and its submissions for offline export",
		Args:  cobra.ExactArgs(1),
		Example: `  formflat pull 12345
  formflat export 12345 --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formID := args[0]
			client, err := c.authedClient()
			if err != nil {
				return err
			}
			ex, err := formflat.New(client, c.cfg.Options())
			if err != nil {
				return err
			}
			definition, data, err := ex.Fetch(cmd.Context(), formID)
			if err != nil {
				return err
			}

			def, err := form.Parse(definition)
			if err != nil {
				return err
			}
			records, err := formflat.DecodeSubmissions(data)
			if err != nil {
				return err
			}

			entry := storage.IndexEntry{
				FormID:      formID,
				IDString:    def.IDString,
				Title:       def.Title,
				URL:         client.BaseURL(),
				Submissions: len(records),
			}
			if err := c.storage().Save(entry, definition, data); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
			slog.Info("Snapshot saved", "form", formID, "submissions", len(records), "folder", c.cfg.Storage.DataFolder)
			return nil
		},
	}
}

func (c *CLI) newSchemaCommand() *cobra.Command {
	var offline, asJSON bool

	cmd := &cobra.Command{
		Use:   "schema <form-id>",
		Short: "Show the tables and column titles a form exports to",
		Args:  cobra.ExactArgs(1),
		Example: `  formflat schema 12345
  formflat schema 12345 --offline --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := c.source(offline)
			if err != nil {
				return err
			}
			definition, err := src.FormDefinition(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tables, err := formflat.Describe(definition, c.cfg.Options())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tables)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for i, t := range tables {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "[%s]\n", t.Name)
				for _, col := range t.Columns {
					fmt.Fprintf(w, "%s\t%s\t%s\n", col.XPath, col.Type, col.Title)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Read a snapshot saved by 'formflat pull'")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
