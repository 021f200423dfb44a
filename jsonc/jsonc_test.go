package jsonc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainObject(t *testing.T) {
	v, err := Parse(`{"a": 1, "b": "two", "c": [true, false, null]}`, Options{})
	require.NoError(t, err)
	require.Equal(t, Object, v.Kind)

	a, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, float64(1), a.Num)

	b, ok := v.GetString("b")
	require.True(t, ok)
	assert.Equal(t, "two", b)

	c, ok := v.Get("c")
	require.True(t, ok)
	require.Len(t, c.Arr, 3)
	assert.Equal(t, True, c.Arr[0].Kind)
	assert.Equal(t, False, c.Arr[1].Kind)
	assert.Equal(t, Null, c.Arr[2].Kind)
}

func TestParsePreservesKeyOrder(t *testing.T) {
	v, err := Parse(`{"z": 1, "a": 2, "m": 3}`, Options{})
	require.NoError(t, err)
	require.Len(t, v.Obj, 3)
	assert.Equal(t, "z", v.Obj[0].Key)
	assert.Equal(t, "a", v.Obj[1].Key)
	assert.Equal(t, "m", v.Obj[2].Key)
}

func TestParseRejectsCommentsByDefault(t *testing.T) {
	_, err := Parse(`{"a": 1 // trailing comment
}`, Options{})
	assert.Error(t, err)
}

func TestParseAllowsCommentsWhenEnabled(t *testing.T) {
	src := `{
		// line comment
		"a": 1, /* block comment */ "b": 2,
	}`
	v, err := Parse(src, Options{AllowComments: true, AllowTrailingCommas: true})
	require.NoError(t, err)
	a, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, float64(1), a.Num)
}

func TestParseRejectsTrailingCommaByDefault(t *testing.T) {
	_, err := Parse(`{"a": 1,}`, Options{})
	assert.Error(t, err)
}

func TestGetBool(t *testing.T) {
	v, err := Parse(`{"flag": true, "off": false, "str": "x"}`, Options{})
	require.NoError(t, err)

	flag, ok := v.GetBool("flag")
	assert.True(t, ok)
	assert.True(t, flag)

	off, ok := v.GetBool("off")
	assert.True(t, ok)
	assert.False(t, off)

	_, ok = v.GetBool("str")
	assert.False(t, ok)

	_, ok = v.GetBool("missing")
	assert.False(t, ok)
}

func TestParseTrailingContentIsError(t *testing.T) {
	_, err := Parse(`{"a": 1} garbage`, Options{})
	assert.Error(t, err)
}

func TestParseStringEscapes(t *testing.T) {
	v, err := Parse(`"a\nb\tcA"`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\tcA", v.Str)
}
