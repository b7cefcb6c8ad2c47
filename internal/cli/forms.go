package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newTokenCommand() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Exchange a username and password for an API token",
		Example: `  formflat token --username enumerator --password secret
  FORMFLAT_API_TOKEN=$(formflat token -u enumerator -p secret -s) formflat forms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			token, err := c.client().FetchToken(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	return cmd
}

func (c *CLI) newFormsCommand() *cobra.Command {
	var offline, asJSON bool

	cmd := &cobra.Command{
		Use:   "forms",
		Short: "List forms visible to the token, or pulled snapshots with --offline",
		Example: `  formflat forms --token abc123
  formflat forms --json
  formflat forms --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if offline {
				return c.listSnapshots(out, asJSON)
			}
			client, err := c.authedClient()
			if err != nil {
				return err
			}
			forms, raw, err := client.Forms(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				_, err := out.Write(append(raw, '\n'))
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tID STRING\tSUBMISSIONS\tTITLE")
			for _, f := range forms {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", f.FormID, f.IDString, f.Submissions, f.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "List pulled snapshots instead of querying the API")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func (c *CLI) listSnapshots(out io.Writer, asJSON bool) error {
	entries, err := c.storage().Entries()
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "No snapshots in %s\n", c.cfg.Storage.DataFolder)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVER\tSUBMISSIONS\tPULLED\tTITLE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.FormID, e.Server, e.Submissions, e.PulledAt.Format("2006-01-02 15:04"), e.Title)
	}
	return w.Flush()
}
