package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/formflat"
)

func (c *CLI) newExportCommand() *cobra.Command {
	var (
		format    string
		output    string
		offline   bool
		locale    string
		delimiter string
		binary    bool
		isoDates  bool
	)

	cmd := &cobra.Command{
		Use:   "export <form-id>",
		Short: "Export a form's submissions as xlsx, a zip of csv files, or sqlite",
		Args:  cobra.ExactArgs(1),
		Example: `  # Export to <form-id>.xlsx using the configured token
  formflat export 12345

  # CSV zip with dotted group titles
  formflat export 12345 -f csv --group-delimiter .

  # Export a pulled snapshot without network access
  formflat export 12345 --offline -o household.sqlite -f sqlite

  # French labels, 1/0 for select-multiple choices
  formflat export 12345 --locale French --binary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formID := args[0]
			opts := c.cfg.Options()
			flags := cmd.Flags()
			if flags.Changed("locale") {
				opts.Locale = locale
			}
			if flags.Changed("group-delimiter") {
				opts.GroupDelimiter = delimiter
			}
			if flags.Changed("binary") {
				opts.BinarySelectMultiples = binary
			}
			if flags.Changed("iso-dates") {
				opts.ISODates = isoDates
			}

			f, err := c.cfg.Format()
			if err != nil {
				return err
			}
			if format != "" {
				if f, err = formflat.ParseFormat(format); err != nil {
					return err
				}
			}
			if output == "" {
				output = formID + "." + f.Ext()
			}

			src, err := c.source(offline)
			if err != nil {
				return err
			}

			var bar *progressbar.ProgressBar
			progress := func(done, total int) {
				if c.silent {
					return
				}
				if bar == nil {
					bar = newProgressBar(total, "Flattening submissions")
				}
				_ = bar.Set(done)
			}
			ex, err := formflat.New(src, opts, formflat.WithProgress(progress))
			if err != nil {
				return err
			}

			return exportToFile(cmd, ex, formID, f, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: xlsx, csv or sqlite (default: export.format)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <form-id>.<ext>)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read a snapshot saved by 'formflat pull'")
	cmd.Flags().StringVar(&locale, "locale", "", "Label language")
	cmd.Flags().StringVar(&delimiter, "group-delimiter", "", "Group delimiter in column titles: / or .")
	cmd.Flags().BoolVar(&binary, "binary", false, "Write 1/0 instead of True/False for select-multiple choices")
	cmd.Flags().BoolVar(&isoDates, "iso-dates", true, "Write datetimes as RFC 3339 in csv and sqlite output")
	return cmd
}

// exportToFile writes to a temp file beside output and renames it once the
// export succeeds, so failed jobs leave no artifact.
func exportToFile(cmd *cobra.Command, ex *formflat.Exporter, formID string, f formflat.Format, output string) error {
	tmp, err := os.CreateTemp(filepath.Dir(output), ".formflat-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("create output: %w", err)
	}

	res, err := ex.Export(cmd.Context(), formID, f, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return fmt.Errorf("move output: %w", err)
	}

	slog.Info("Export written",
		"output", output,
		"records", res.Records,
		"tables", res.Tables,
		"duration", res.Duration.Round(time.Millisecond),
	)
	if res.Stats.TypeConversions > 0 || res.Stats.UnresolvedChoices > 0 {
		slog.Warn("Some cells were kept as raw text",
			"type_conversions", res.Stats.TypeConversions,
			"unresolved_choices", res.Stats.UnresolvedChoices,
		)
	}
	return nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}
