package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"plain", "Household size", "Household size"},
		{"plain whitespace", "  Household\n size ", "Household size"},
		{"span", `<span style="color:red">Age</span> of head`, "Age of head"},
		{"entities", "Tom &amp; Jerry", "Tom & Jerry"},
		{"line break", "First line<br>second line", "First line second line"},
		{"paragraphs", "<p>One</p><p>Two</p>", "One Two"},
		{"nested", "<b>Bold <i>and italic</i></b>", "Bold and italic"},
		{"script dropped", "Name<script>alert(1)</script>", "Name"},
		{"unicode", "<em>Âge du répondant</em>", "Âge du répondant"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTags(tt.label))
		})
	}
}

func TestLoadFragment(t *testing.T) {
	doc, err := LoadFragment(`<span class="hint">Select one</span> option`)
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Find("span.hint").Length())
	assert.Equal(t, "Select one option", doc.Text())
}
