package canon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	v := map[string]any{
		"b": json.Number("1"),
		"a": json.Number("2"),
		"c": json.Number("3"),
	}
	b, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(b))
}

func TestMarshalNoWhitespace(t *testing.T) {
	v := []any{json.Number("1"), "x", nil, true, false}
	b, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `[1,"x",null,true,false]`, string(b))
}

func TestMarshalPreservesNumberText(t *testing.T) {
	cases := []string{"1", "1.0", "1.50", "1e10", "-0", "0.000"}
	for _, c := range cases {
		b, err := Marshal(json.Number(c))
		require.NoError(t, err)
		assert.Equal(t, c, string(b))
	}
}

func TestMarshalRejectsMalformedNumber(t *testing.T) {
	_, err := Marshal(json.Number("01"))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = Marshal(json.Number("NaN"))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = Marshal(json.Number(""))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDecodeRoundTrip(t *testing.T) {
	in := `{"z":1,"a":[1,2.5,"s",null,true,false],"m":{}}`
	v, err := Decode([]byte(in))
	require.NoError(t, err)

	out, err := Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`1 2`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestFingerprintDeterministic(t *testing.T) {
	v1 := map[string]any{"a": json.Number("1"), "b": json.Number("2")}
	v2 := map[string]any{"b": json.Number("2"), "a": json.Number("1")}

	fp1, b1, err := Fingerprint(v1)
	require.NoError(t, err)
	fp2, b2, err := Fingerprint(v2)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Equal(t, b1, b2)
	assert.True(t, IsHex(fp1))
	assert.Len(t, fp1, 64)
}

func TestFingerprintSensitiveToValue(t *testing.T) {
	fp1, _, err := Fingerprint(json.Number("1"))
	require.NoError(t, err)
	fp2, _, err := Fingerprint(json.Number("2"))
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestValidateRejectsUnsupportedType(t *testing.T) {
	err := Validate(3.14)
	assert.ErrorIs(t, err, ErrInvalidJSON)

	err = Validate(map[string]any{"k": struct{}{}})
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestValidateAcceptsClosedVariant(t *testing.T) {
	v := map[string]any{
		"n": nil,
		"b": true,
		"i": json.Number("42"),
		"s": "hello",
		"a": []any{json.Number("1"), "two"},
	}
	assert.NoError(t, Validate(v))
}

func TestIsHex(t *testing.T) {
	assert.True(t, IsHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"))
	assert.False(t, IsHex("short"))
	assert.False(t, IsHex("0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcd"))
}
