package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a loader that looks for formflat.yaml in rootDir.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// NewFileLoader creates a loader for an explicit config file. A missing
// explicit file is an error.
func NewFileLoader(path string) Loader {
	return &loader{configFile: path}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (FORMFLAT_*)
// 2. Config file (formflat.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v, err := l.read()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *loader) read() (*viper.Viper, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("formflat")
		v.SetConfigType("yaml")
		v.AddConfigPath(l.rootDir)
	}

	v.SetEnvPrefix("FORMFLAT")
	v.AutomaticEnv()
	// FORMFLAT_EXPORT_LOCALE -> export.locale
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key gets a default so AutomaticEnv can see it during Unmarshal.
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("api.url", d.API.URL)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.timeout", d.API.Timeout)

	v.SetDefault("export.format", d.Export.Format)
	v.SetDefault("export.group_delimiter", d.Export.GroupDelimiter)
	v.SetDefault("export.split_select_multiples", d.Export.SplitSelectMultiples)
	v.SetDefault("export.binary_select_multiples", d.Export.BinarySelectMultiples)
	v.SetDefault("export.locale", d.Export.Locale)
	v.SetDefault("export.title_dedup", d.Export.TitleDedup)
	v.SetDefault("export.numbered_titles", d.Export.NumberedTitles)
	v.SetDefault("export.strip_label_markup", d.Export.StripLabelMarkup)
	v.SetDefault("export.iso_dates", d.Export.ISODates)
	v.SetDefault("export.index_column", d.Export.IndexColumn)
	v.SetDefault("export.sort_column", d.Export.SortColumn)
	v.SetDefault("export.excluded_types", d.Export.ExcludedTypes)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.static_dir", d.Server.StaticDir)

	v.SetDefault("storage.data_folder", d.Storage.DataFolder)
}

// LoadConfig loads configuration using the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}
