package flatten

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/schema"
)

func buildSchema(t *testing.T, definition string) *schema.Schema {
	t.Helper()
	def, err := form.Parse([]byte(definition))
	require.NoError(t, err)
	s, err := schema.Build(def, options.Default())
	require.NoError(t, err)
	return s
}

func decodeRecords(t *testing.T, data string) []map[string]any {
	t.Helper()
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &records))
	return records
}

const membersForm = `{"name": "survey", "children": [
	{"name": "village", "type": "text"},
	{"name": "members", "type": "repeat", "children": [
		{"name": "name", "type": "text"},
		{"name": "age", "type": "integer"}
	]}
]}`

func TestFlattenAll_Members(t *testing.T) {
	s := buildSchema(t, membersForm)
	records := decodeRecords(t, `[
		{"_id": 1, "village": "A", "members": [
			{"members/name": "Ann", "members/age": "30"},
			{"members/name": "Bob", "members/age": "8"}
		]},
		{"_id": 2, "village": "B", "members": [
			{"members/name": "Cid", "members/age": "41"},
			{"members/name": "Dee", "members/age": "39"}
		]}
	]`)

	tables, err := New(s, options.Default()).FlattenAll(records, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"survey", "members"}, tables.Names())
	root := tables.Rows("survey")
	members := tables.Rows("members")
	require.Len(t, root, 2)
	require.Len(t, members, 4)
	assert.Equal(t, 6, tables.Len())

	for i, r := range root {
		assert.Equal(t, i+1, r.Index)
		assert.Equal(t, -1, r.ParentIndex)
		assert.Empty(t, r.ParentTable)
	}
	rootIndexes := map[int]bool{1: true, 2: true}
	for i, r := range members {
		assert.Equal(t, i+1, r.Index, "indexes are 1..N without gaps")
		assert.Equal(t, "survey", r.ParentTable)
		assert.True(t, rootIndexes[r.ParentIndex])
	}
	assert.Equal(t, []int{1, 1, 2, 2}, []int{members[0].ParentIndex, members[1].ParentIndex, members[2].ParentIndex, members[3].ParentIndex})
	assert.Equal(t, "Cid", members[2].Values["members/name"])
	assert.Equal(t, "B", root[1].Values["village"])
	assert.NotContains(t, root[0].Values, "members")
}

func TestFlatten_NestedRepeatsLinkToParentRow(t *testing.T) {
	s := buildSchema(t, `{"name": "census", "children": [
		{"name": "hh", "type": "repeat", "children": [
			{"name": "head", "type": "text"},
			{"name": "people", "type": "repeat", "children": [{"name": "age", "type": "integer"}]}
		]}
	]}`)
	records := decodeRecords(t, `[
		{"hh": [
			{"hh/head": "a", "hh/people": [{"hh/people/age": "1"}, {"hh/people/age": "2"}]},
			{"hh/head": "b", "hh/people": [{"hh/people/age": "3"}]}
		]},
		{"hh": [
			{"hh/head": "c", "hh/people": [{"hh/people/age": "4"}]}
		]}
	]`)

	tables, err := New(s, options.Default()).FlattenAll(records, nil)
	require.NoError(t, err)

	hh := tables.Rows("hh")
	people := tables.Rows("hh/people")
	require.Len(t, hh, 3)
	require.Len(t, people, 4)

	byIndex := map[string]map[int]*Row{}
	for _, name := range tables.Names() {
		byIndex[name] = map[int]*Row{}
		for _, r := range tables.Rows(name) {
			byIndex[name][r.Index] = r
		}
	}
	for _, p := range people {
		parent, ok := byIndex[p.ParentTable][p.ParentIndex]
		require.True(t, ok, "parent %s#%d must exist", p.ParentTable, p.ParentIndex)
		assert.Equal(t, "hh", parent.Table)
	}
	assert.Equal(t, []int{1, 1, 2, 3}, []int{people[0].ParentIndex, people[1].ParentIndex, people[2].ParentIndex, people[3].ParentIndex})
	assert.Equal(t, 2, hh[2].ParentIndex, "third hh row belongs to the second record")
}

func TestFlatten_TagsNotesAndIgnoredKeys(t *testing.T) {
	s := buildSchema(t, membersForm)
	records := decodeRecords(t, `[{
		"_tags": ["verified", "urban"],
		"_notes": [{"note": "first"}, {"note": "second"}],
		"_attachments": [{"filename": "x.jpg"}],
		"_geolocation": [1.5, 2.5],
		"_status": "submitted_via_web",
		"village": "A",
		"codes": ["x", "y"],
		"members": []
	}]`)

	tables, err := New(s, options.Default()).Flatten(records[0])
	require.NoError(t, err)

	row := tables.Rows("survey")[0]
	assert.Equal(t, "verified,urban", row.Values[options.Tags])
	assert.Equal(t, "first\r\nsecond", row.Values[options.Notes])
	assert.Equal(t, []any{"x", "y"}, row.Values["codes"], "scalar lists stay as values")
	for _, k := range []string{"_attachments", "_geolocation", "_status"} {
		assert.NotContains(t, row.Values, k)
	}
	assert.Empty(t, tables.Rows("members"))
}

func TestFlatten_UnknownRepeatIsFatal(t *testing.T) {
	s := buildSchema(t, membersForm)
	records := decodeRecords(t, `[{"village": "A", "pets": [{"pets/name": "Rex"}]}]`)

	_, err := New(s, options.Default()).FlattenAll(records, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsSourceData(err))
}

func TestFlatten_Household(t *testing.T) {
	data, err := os.ReadFile("../../testdata/household/form.json")
	require.NoError(t, err)
	def, err := form.Parse(data)
	require.NoError(t, err)
	s, err := schema.Build(def, options.Default())
	require.NoError(t, err)

	raw, err := os.ReadFile("../../testdata/household/data.json")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))

	tables, err := New(s, options.Default()).FlattenAll(records, nil)
	require.NoError(t, err)
	require.Len(t, tables.Rows("household_survey"), 2)
	require.Len(t, tables.Rows("members"), 4)
	assert.Equal(t, "checked by supervisor\r\ncall back", tables.Rows("household_survey")[0].Values[options.Notes])
	assert.Equal(t, "", tables.Rows("household_survey")[1].Values[options.Tags])
}
