package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	o := Default()
	assert.NoError(t, o.Validate())
	assert.Equal(t, DelimiterSlash, o.GroupDelimiter)
	assert.True(t, o.SplitSelectMultiples)
	assert.Equal(t, DedupName, o.TitleDedup)
	assert.Equal(t, "instanceID", o.IndexColumn)
}

func TestIsExcluded(t *testing.T) {
	o := Default()
	assert.True(t, o.IsExcluded("note"))
	assert.True(t, o.IsExcluded("", "note"))
	assert.False(t, o.IsExcluded("text", "string"))
	assert.False(t, o.IsExcluded(""))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"dot delimiter", func(o *Options) { o.GroupDelimiter = DelimiterDot }, ""},
		{"numeral dedup", func(o *Options) { o.TitleDedup = DedupNumeral }, ""},
		{"bad delimiter", func(o *Options) { o.GroupDelimiter = "-" }, `got "-"`},
		{"bad dedup", func(o *Options) { o.TitleDedup = "x" }, `got "x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Default()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
