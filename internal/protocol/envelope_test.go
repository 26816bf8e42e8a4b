package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_RegistrationOmitsResponseFields(t *testing.T) {
	b, err := Encode(Envelope{Type: TypeDomain, Message: "zack", Key: "abc123"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "domain", m["type"])
	assert.Equal(t, "zack", m["message"])
	assert.Equal(t, "abc123", m["key"])
	assert.NotContains(t, m, "success")
	assert.NotContains(t, m, "ip")
}

func TestEncode_ReplyKeepsFalseSuccess(t *testing.T) {
	b, err := Encode(Reply(TypeGet, MessageNotFound, "k", false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"get","message":"not found","key":"k","success":false}`, string(b))
}

func TestDecode_RelayRequest(t *testing.T) {
	e, err := Decode([]byte(`{"type":"get","message":"dir/a.txt","ip":"10.0.0.1","success":false}`))
	require.NoError(t, err)
	assert.Equal(t, TypeGet, e.Type)
	assert.Equal(t, "dir/a.txt", e.Message)
	assert.Equal(t, "10.0.0.1", e.IP)
	require.NotNil(t, e.Success)
	assert.False(t, e.Succeeded())
}

func TestDecode_NonStringMessage(t *testing.T) {
	e, err := Decode([]byte(`{"type":"message","message": {"a": [1, 2]}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, e.Message)
}

func TestDecode_NullMessageIsPresent(t *testing.T) {
	e, err := Decode([]byte(`{"type":"message","message":null}`))
	require.NoError(t, err)
	assert.Equal(t, "", e.Message)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing type", `{"message":"x"}`},
		{"missing message", `{"type":"get"}`},
		{"not json", `hello`},
		{"array", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestDecode_UnknownTypeIsNotMalformed(t *testing.T) {
	e, err := Decode([]byte(`{"type":"ping","message":""}`))
	require.NoError(t, err)
	assert.Equal(t, Type("ping"), e.Type)
}

func TestSitemap_RoundTrip(t *testing.T) {
	msg, err := MarshalSitemap([]SitemapItem{
		{Name: "a.txt", RelativePath: "proj/a.txt", Size: 3},
		{Name: "b.txt", Size: 4},
	})
	require.NoError(t, err)

	items, err := UnmarshalSitemap(msg)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "proj/a.txt", items[0].Path())
	assert.Equal(t, "b.txt", items[1].Path())
}

func TestMarshalSitemap_NilIsEmptyList(t *testing.T) {
	msg, err := MarshalSitemap(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", msg)
}
