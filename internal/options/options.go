// Package options holds the export settings shared by every pipeline stage.
//
// An Options value is built once per export job and passed by value into each
// component, so no stage can mutate what another stage sees.
package options

import (
	"errors"
	"fmt"
	"slices"
)

// Metadata columns appended to every table.
const (
	ID             = "_id"
	UUID           = "_uuid"
	SubmissionTime = "_submission_time"
	Index          = "_index"
	ParentTable    = "_parent_table_name"
	ParentIndex    = "_parent_index"
	Tags           = "_tags"
	Notes          = "_notes"
	Version        = "_version"
)

// ExtraFields are exported for every table but are not part of the form structure.
var ExtraFields = []string{ID, UUID, SubmissionTime, Index, ParentTable, ParentIndex, Tags, Notes, Version}

// IgnoredFields are submission keys that are never exported.
var IgnoredFields = []string{"_xform_id_string", "_status", "_attachments", "_geolocation", "_bamboo_dataset_id", "_deleted_at"}

// Group delimiters accepted for column titles.
const (
	DelimiterSlash = "/"
	DelimiterDot   = "."
)

// TitleDedup selects how colliding labels are disambiguated.
type TitleDedup string

const (
	// DedupName appends the short field name in parentheses.
	DedupName TitleDedup = "name"
	// DedupNumeral appends an occurrence counter in parentheses.
	DedupNumeral TitleDedup = "numeral"
)

// Options configures schema building, flattening, preprocessing and writing.
type Options struct {
	GroupDelimiter        string
	SplitSelectMultiples  bool
	BinarySelectMultiples bool
	Locale                string
	TitleDedup            TitleDedup
	NumberedTitles        bool
	StripLabelMarkup      bool
	ISODates              bool
	IndexColumn           string // unique submission id column used as the sheet index
	SortColumn            string // secondary chronological sort column
	ExcludedTypes         []string
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		GroupDelimiter:       DelimiterSlash,
		SplitSelectMultiples: true,
		Locale:               "English",
		TitleDedup:           DedupName,
		NumberedTitles:       true,
		StripLabelMarkup:     true,
		ISODates:             true,
		IndexColumn:          "instanceID",
		SortColumn:           "start",
		ExcludedTypes:        []string{"note"},
	}
}

// IsExcluded reports whether a question of the given type is left out of exports.
func (o Options) IsExcluded(types ...string) bool {
	for _, t := range types {
		if t != "" && slices.Contains(o.ExcludedTypes, t) {
			return true
		}
	}
	return false
}

// Validate checks option values that would otherwise fail deep inside a job.
func (o Options) Validate() error {
	var errs []error
	if o.GroupDelimiter != DelimiterSlash && o.GroupDelimiter != DelimiterDot {
		errs = append(errs, fmt.Errorf("group delimiter must be %q or %q, got %q", DelimiterSlash, DelimiterDot, o.GroupDelimiter))
	}
	if o.TitleDedup != DedupName && o.TitleDedup != DedupNumeral {
		errs = append(errs, fmt.Errorf("title dedup must be %q or %q, got %q", DedupName, DedupNumeral, o.TitleDedup))
	}
	return errors.Join(errs...)
}
