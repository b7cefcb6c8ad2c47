package config

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrInvalidURL indicates an API url that is not absolute http(s).
	ErrInvalidURL = errors.New("invalid api url")

	// ErrInvalidTimeout indicates a non-positive request timeout
	ErrInvalidTimeout = errors.New("invalid api timeout")

	// ErrEmptyAddr indicates a missing server listen address
	ErrEmptyAddr = errors.New("empty server addr")

	// ErrEmptyDataFolder indicates a missing snapshot folder
	ErrEmptyDataFolder = errors.New("empty storage data folder")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	u, err := url.Parse(cfg.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.API.URL))
	}
	if cfg.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTimeout, cfg.API.Timeout))
	}

	if _, err := cfg.Format(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Options().Validate(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Server.Addr == "" {
		errs = append(errs, ErrEmptyAddr)
	}
	if cfg.Storage.DataFolder == "" {
		errs = append(errs, ErrEmptyDataFolder)
	}

	return errors.Join(errs...)
}
