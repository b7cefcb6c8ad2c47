package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/formflat/internal/apperr"
)

func TestGetDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://kc.humanitarianresponse.info/api/v1", "humanitarianresponse"},
		{"https://api.ona.io/api/v1", "ona"},
		{"https://kobo.example.co.uk/path", "example"},
		{"example.org", "example"},
		{"http://localhost:8080/api/v1", "localhost"},
	}
	for _, tt := range tests {
		got := GetDomain(tt.url)
		if got != tt.want {
			t.Errorf("GetDomain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSaveAndRead(t *testing.T) {
	s := NewStorage(t.TempDir())
	ctx := context.Background()

	err := s.Save(IndexEntry{FormID: "42", Title: "Household Survey", URL: "https://kc.humanitarianresponse.info/api/v1", Submissions: 2},
		[]byte(`{"name": "household_survey"}`), []byte(`[{"_id": 1}]`))
	require.NoError(t, err)
	require.NoError(t, s.Save(IndexEntry{FormID: "7", URL: "https://api.ona.io/api/v1"}, []byte(`{}`), []byte(`[]`)))

	def, err := s.FormDefinition(ctx, "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "household_survey"}`, string(def))
	data, err := s.Submissions(ctx, "42")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"_id": 1}]`, string(data))

	index, err := s.GetIndex()
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, "humanitarianresponse", index["42"].Server)
	assert.False(t, index["42"].PulledAt.IsZero())

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "42", entries[0].FormID)
	assert.Equal(t, "7", entries[1].FormID)

	assert.FileExists(t, filepath.Join(s.Folder, "42", "form.json"))
}

func TestSaveOverwrites(t *testing.T) {
	s := NewStorage(t.TempDir())
	require.NoError(t, s.Save(IndexEntry{FormID: "1", Submissions: 1}, []byte(`{}`), []byte(`[1]`)))
	require.NoError(t, s.Save(IndexEntry{FormID: "1", Submissions: 3}, []byte(`{}`), []byte(`[1,2,3]`)))

	index, err := s.GetIndex()
	require.NoError(t, err)
	assert.Equal(t, 3, index["1"].Submissions)
	data, err := s.Submissions(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, `[1,2,3]`, string(data))
}

func TestMissingSnapshot(t *testing.T) {
	s := NewStorage(t.TempDir())

	index, err := s.GetIndex()
	require.NoError(t, err)
	assert.Empty(t, index)

	_, err = s.FormDefinition(context.Background(), "404")
	assert.True(t, apperr.IsSourceData(err))
}

func TestInvalidFormID(t *testing.T) {
	s := NewStorage(t.TempDir())
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		assert.Error(t, s.Save(IndexEntry{FormID: id}, nil, nil), id)
		_, err := s.Submissions(context.Background(), id)
		assert.True(t, apperr.IsSourceData(err), id)
	}
}

func TestCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("{"), 0644))
	_, err := NewStorage(dir).GetIndex()
	assert.Error(t, err)
}
