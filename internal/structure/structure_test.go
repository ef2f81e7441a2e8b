package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/temperature", JoinPath("/", "temperature"))
	assert.Equal(t, "/grid/temperature", JoinPath("/grid", "temperature"))
	assert.Equal(t, "/x", JoinPath("", "x"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "/", Clean(""))
	assert.Equal(t, "/grid", Clean("grid/"))
	assert.Equal(t, "/grid/x", Clean("//grid//x"))
}

func TestCovers(t *testing.T) {
	tests := []struct {
		skip, path string
		want       bool
	}{
		{"/grid", "/grid", true},
		{"/grid", "/grid/temperature", true},
		{"grid/", "/grid/inner/x", true},
		{"/grid", "/gridded", false},
		{"/grid/temperature", "/grid", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Covers(tt.skip, tt.path), "Covers(%q, %q)", tt.skip, tt.path)
	}

	assert.True(t, CoveredByAny([]string{"/a", "/grid"}, "/grid/x"))
	assert.False(t, CoveredByAny(nil, "/grid/x"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "group", KindGroup.String())
	assert.Equal(t, "variable", KindVariable.String())
	assert.Equal(t, "band", KindBand.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
