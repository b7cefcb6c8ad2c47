package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name       string
		err        error
		wantAuth   bool
		wantSource bool
		wantMsg    string
	}{
		{"auth with status", Auth(401, base), true, false, "authentication failed (HTTP 401): boom"},
		{"auth without status", Auth(0, base), true, false, "authentication failed: boom"},
		{"source data", SourceData("GET /data/1", base), false, true, "source data: GET /data/1: boom"},
		{"source data no op", SourceData("", base), false, true, "source data: boom"},
		{"formatted", SourceDataf("decode", "bad %s", "json"), false, true, "source data: decode: bad json"},
		{"wrapped auth", fmt.Errorf("fetch: %w", Auth(403, base)), true, false, "fetch: authentication failed (HTTP 403): boom"},
		{"plain", base, false, false, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAuth, IsAuth(tt.err))
			assert.Equal(t, tt.wantSource, IsSourceData(tt.err))
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	assert.ErrorIs(t, Auth(401, base), base)
	assert.ErrorIs(t, SourceData("op", base), base)
	assert.ErrorIs(t, &TypeConversionError{Column: "age", Type: "int", Value: "x", Err: base}, base)
}

func TestCellErrors(t *testing.T) {
	conv := &TypeConversionError{Column: "members/age", Type: "int", Value: "two", Err: errors.New("invalid syntax")}
	assert.Equal(t, `convert members/age="two" to int: invalid syntax`, conv.Error())

	choice := &ChoiceResolutionError{Column: "water", Code: "lake"}
	assert.Equal(t, `no label for choice "lake" in water`, choice.Error())
}
