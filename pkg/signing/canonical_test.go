package signing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMetadata(t *testing.T, doc string) Metadata {
	t.Helper()
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(doc), &md))
	return md
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want string
	}{
		{name: "empty", in: map[string]any{}, want: `{}`},
		{name: "sorted keys", in: map[string]any{"b": 2, "a": 1}, want: `{"a": 1, "b": 2}`},
		{name: "nested", in: map[string]any{"z": map[string]any{"y": true, "x": nil}, "a": []any{"q", 1}}, want: `{"a": ["q", 1], "z": {"x": null, "y": true}}`},
		{name: "integral float", in: map[string]any{"f": 1.0}, want: `{"f": 1.0}`},
		{name: "fraction", in: map[string]any{"f": 0.1}, want: `{"f": 0.1}`},
		{name: "large float", in: map[string]any{"f": 1e16}, want: `{"f": 1e+16}`},
		{name: "below exponent threshold", in: map[string]any{"f": 1234567890123456.0}, want: `{"f": 1234567890123456.0}`},
		{name: "small float", in: map[string]any{"f": 1.5e-05}, want: `{"f": 1.5e-05}`},
		{name: "small fixed", in: map[string]any{"f": 0.0001}, want: `{"f": 0.0001}`},
		{name: "negative zero", in: map[string]any{"f": math.Copysign(0, -1)}, want: `{"f": -0.0}`},
		{name: "epoch timestamp", in: map[string]any{"ts": 1760870400.25}, want: `{"ts": 1760870400.25}`},
		{name: "non ascii", in: map[string]any{"s": "héllo"}, want: `{"s": "h\u00e9llo"}`},
		{name: "astral plane", in: map[string]any{"s": "😀"}, want: `{"s": "\ud83d\ude00"}`},
		{name: "control characters", in: map[string]any{"s": "a\tb\n\x01\x7f\"\\"}, want: `{"s": "a\tb\n\u0001\u007f\"\\"}`},
		{name: "html is not escaped", in: map[string]any{"s": "<a&b>"}, want: `{"s": "<a&b>"}`},
		{name: "typed values", in: map[string]any{"m": map[string]string{"k": "v"}, "l": []string{"a", "b"}, "n": []string(nil)}, want: `{"l": ["a", "b"], "m": {"k": "v"}, "n": null}`},
		{name: "integers", in: map[string]any{"i": int64(-7), "u": uint8(200)}, want: `{"i": -7, "u": 200}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalize_JSONNumbers(t *testing.T) {
	md := decodeMetadata(t, `{"int": 3, "float": 2.0, "exp": 1E5, "big": 12345678901234567890123, "neg": -0.5}`)

	got, err := Canonicalize(md)
	require.NoError(t, err)
	assert.Equal(t, `{"big": 12345678901234567890123, "exp": 100000.0, "float": 2.0, "int": 3, "neg": -0.5}`, string(got))
}

func TestCanonicalize_OrderIndependent(t *testing.T) {
	a := decodeMetadata(t, `{"a": 1, "b": {"c": [1, 2], "d": "x"}, "e": 1.5}`)
	b := decodeMetadata(t, `{"e": 1.5, "b": {"d": "x", "c": [1, 2]}, "a": 1}`)

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestCanonicalize_RejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Canonicalize(map[string]any{"v": v})
		assert.Error(t, err)
	}

	_, err := Canonicalize(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestMetadata_SidecarRoundTrip(t *testing.T) {
	md := Metadata{"ratio": 2.0, "count": 3, "name": "ünïcode", "nested": map[string]any{"t": 1760870400.5}}

	want, err := Canonicalize(md)
	require.NoError(t, err)

	data, err := json.MarshalIndent(struct {
		Metadata Metadata `json:"metadata"`
	}{md}, "", "  ")
	require.NoError(t, err)

	var back struct {
		Metadata Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &back))

	got, err := Canonicalize(back.Metadata)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestPayload(t *testing.T) {
	data := []byte("media")

	p, err := Payload(data, nil)
	require.NoError(t, err)
	assert.Equal(t, data, p)

	p, err = Payload(data, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, data, p, "empty metadata is treated as absent")

	p, err = Payload(data, Metadata{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `media{"a": 1}`, string(p))
}
