package form

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/formflat/internal/apperr"
)

func loadHousehold(t *testing.T) *Definition {
	t.Helper()
	data, err := os.ReadFile("../../testdata/household/form.json")
	require.NoError(t, err)
	def, err := Parse(data)
	require.NoError(t, err)
	return def
}

func TestParse_Household(t *testing.T) {
	def := loadHousehold(t)

	assert.Equal(t, "household_survey", def.Name)
	assert.Equal(t, "Household Survey", def.Title)
	assert.Equal(t, "household_survey", def.IDString)
	require.Len(t, def.Root.Children, 11)

	hh := def.Root.Children[2]
	assert.Equal(t, KindGroup, hh.Kind)
	assert.Equal(t, "hh", hh.Path)
	require.Len(t, hh.Children, 3)
	assert.Equal(t, "hh/hh_size", hh.Children[0].Path)
	assert.Equal(t, BindInt, hh.Children[0].BindType)

	members := def.Root.Children[8]
	assert.Equal(t, KindRepeat, members.Kind)
	assert.Equal(t, "members/age", members.Children[1].Path)
	assert.Equal(t, "sex", members.Children[2].Itemset)

	water := def.Root.Children[4]
	assert.Equal(t, BindSelectOne, water.BindType)
	require.Len(t, water.Choices, 3)
	assert.Equal(t, "well", water.Choices[1].Name)
	assert.Equal(t, "Well", water.Choices[1].Label.Resolve("English"))

	assert.Len(t, def.ItemsetChoices("yesno"), 2)
	assert.Nil(t, def.ItemsetChoices("missing"))
}

func TestParse_BindTypeFromFormType(t *testing.T) {
	def := loadHousehold(t)

	byPath := map[string]*Node{}
	def.Walk(func(n *Node) bool {
		byPath[n.Path] = n
		return true
	})

	assert.Equal(t, BindDateTime, byPath["start"].BindType)
	assert.Equal(t, BindGeopoint, byPath["location"].BindType)
	assert.Equal(t, BindSelectOne, byPath["consent"].BindType)
	assert.Equal(t, BindInt, byPath["members/age"].BindType)
	assert.Equal(t, BindString, byPath["members/name"].BindType)
	assert.Equal(t, BindString, byPath["meta/instanceID"].BindType)
	assert.Equal(t, "", byPath["meta"].BindType)
}

func TestWalk_DocumentOrderAndSkip(t *testing.T) {
	def := loadHousehold(t)

	var paths []string
	def.Walk(func(n *Node) bool {
		paths = append(paths, n.Path)
		return n.Kind != KindRepeat
	})

	assert.Equal(t, []string{
		"start", "end", "hh", "hh/hh_size", "hh/head_name", "hh/visit_date",
		"location", "water", "assets", "consent", "respondent_age", "members",
		"intro_note", "meta", "meta/instanceID",
	}, paths)
}

func TestLanguages(t *testing.T) {
	assert.Equal(t, []string{"English", "French"}, loadHousehold(t).Languages())

	def, err := Parse([]byte(`{"name": "s", "children": [{"name": "q", "type": "text", "label": "Q"}]}`))
	require.NoError(t, err)
	assert.Empty(t, def.Languages())
}

func TestLabel_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		label  Label
		locale string
		want   string
	}{
		{"plain", Label{Text: "Age"}, "English", "Age"},
		{"preferred locale", Label{ByLocale: map[string]string{"English": "Age", "French": "Âge"}}, "French", "Âge"},
		{"default fallback", Label{ByLocale: map[string]string{"default": "Age", "French": "Âge"}}, "English", "Age"},
		{"first locale fallback", Label{ByLocale: map[string]string{"Swahili": "Umri", "French": "Âge"}}, "English", "Âge"},
		{"empty", Label{}, "English", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.label.Resolve(tt.locale))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{not json`},
		{"no name", `{"children": []}`},
		{"no children", `{"name": "x"}`},
		{"unnamed child", `{"name": "x", "children": [{"type": "text"}]}`},
		{"duplicate path", `{"name": "x", "children": [{"name": "a", "type": "text"}, {"name": "a", "type": "integer"}]}`},
		{"bad label", `{"name": "x", "children": [{"name": "a", "type": "text", "label": 5}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, apperr.IsSourceData(err), "expected SourceDataError, got %v", err)
		})
	}
}

func TestParse_SamePathInDifferentGroupsAllowed(t *testing.T) {
	def, err := Parse([]byte(`{"name": "x", "children": [
		{"name": "g1", "type": "group", "children": [{"name": "age", "type": "integer"}]},
		{"name": "g2", "type": "group", "children": [{"name": "age", "type": "integer"}]}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, "g2/age", def.Root.Children[1].Children[0].Path)
}
