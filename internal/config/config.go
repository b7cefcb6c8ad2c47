// Package config loads formflat settings from defaults, a config file and
// FORMFLAT_* environment variables.
package config

import (
	"time"

	"github.com/happyhackingspace/formflat/internal/export"
	"github.com/happyhackingspace/formflat/internal/kobo"
	"github.com/happyhackingspace/formflat/internal/options"
)

// Config is the complete formflat configuration.
type Config struct {
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
}

// APIConfig points at the survey data API.
type APIConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Token   string        `yaml:"token" mapstructure:"token"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ExportConfig mirrors options.Options plus the default output format.
type ExportConfig struct {
	Format                string   `yaml:"format" mapstructure:"format"`
	GroupDelimiter        string   `yaml:"group_delimiter" mapstructure:"group_delimiter"`
	SplitSelectMultiples  bool     `yaml:"split_select_multiples" mapstructure:"split_select_multiples"`
	BinarySelectMultiples bool     `yaml:"binary_select_multiples" mapstructure:"binary_select_multiples"`
	Locale                string   `yaml:"locale" mapstructure:"locale"`
	TitleDedup            string   `yaml:"title_dedup" mapstructure:"title_dedup"` // "name" or "numeral"
	NumberedTitles        bool     `yaml:"numbered_titles" mapstructure:"numbered_titles"`
	StripLabelMarkup      bool     `yaml:"strip_label_markup" mapstructure:"strip_label_markup"`
	ISODates              bool     `yaml:"iso_dates" mapstructure:"iso_dates"`
	IndexColumn           string   `yaml:"index_column" mapstructure:"index_column"`
	SortColumn            string   `yaml:"sort_column" mapstructure:"sort_column"`
	ExcludedTypes         []string `yaml:"excluded_types" mapstructure:"excluded_types"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

// StorageConfig configures the offline snapshot store.
type StorageConfig struct {
	DataFolder string `yaml:"data_folder" mapstructure:"data_folder"`
}

// Default returns a configuration with the built-in defaults.
func Default() *Config {
	opts := options.Default()
	return &Config{
		API: APIConfig{
			URL:     kobo.DefaultURL,
			Timeout: 60 * time.Second,
		},
		Export: ExportConfig{
			Format:                string(export.FormatXLSX),
			GroupDelimiter:        opts.GroupDelimiter,
			SplitSelectMultiples:  opts.SplitSelectMultiples,
			BinarySelectMultiples: opts.BinarySelectMultiples,
			Locale:                opts.Locale,
			TitleDedup:            string(opts.TitleDedup),
			NumberedTitles:        opts.NumberedTitles,
			StripLabelMarkup:      opts.StripLabelMarkup,
			ISODates:              opts.ISODates,
			IndexColumn:           opts.IndexColumn,
			SortColumn:            opts.SortColumn,
			ExcludedTypes:         opts.ExcludedTypes,
		},
		Server: ServerConfig{
			Addr:      ":8000",
			StaticDir: "static",
		},
		Storage: StorageConfig{
			DataFolder: "data",
		},
	}
}

// Options converts the export section into pipeline options.
func (c *Config) Options() options.Options {
	e := c.Export
	return options.Options{
		GroupDelimiter:        e.GroupDelimiter,
		SplitSelectMultiples:  e.SplitSelectMultiples,
		BinarySelectMultiples: e.BinarySelectMultiples,
		Locale:                e.Locale,
		TitleDedup:            options.TitleDedup(e.TitleDedup),
		NumberedTitles:        e.NumberedTitles,
		StripLabelMarkup:      e.StripLabelMarkup,
		ISODates:              e.ISODates,
		IndexColumn:           e.IndexColumn,
		SortColumn:            e.SortColumn,
		ExcludedTypes:         e.ExcludedTypes,
	}
}

// Format returns the configured default output format.
func (c *Config) Format() (export.Format, error) {
	return export.ParseFormat(c.Export.Format)
}
