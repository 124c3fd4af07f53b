package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

type sample struct {
	ChatID   string     `cbor:"chat_id"`
	Sequence int64      `cbor:"sequence"`
	Body     []byte     `cbor:"body,omitempty"`
	At       time.Time  `cbor:"at"`
	Expires  *time.Time `cbor:"expires,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 123456789, time.UTC)
	in := sample{ChatID: "c1", Sequence: 7, Body: []byte{1, 2, 3}, At: at}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in.ChatID, out.ChatID)
	assert.Equal(t, in.Sequence, out.Sequence)
	assert.Equal(t, in.Body, out.Body)
	assert.True(t, at.Equal(out.At), "nanosecond precision survives")
	assert.Nil(t, out.Expires)
}

func TestMarshal_Deterministic(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": []int{3}}
	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(first, again))
	}
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"chat_id": "c9", "future_field": true})
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "c9", out.ChatID)
}

func TestUnmarshal_Garbage(t *testing.T) {
	var out sample
	assert.Error(t, Unmarshal([]byte{0xff, 0x00}, &out))
}

func TestGRPCCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(Name)
	require.NotNil(t, c)
	assert.Equal(t, Name, c.Name())

	data, err := c.Marshal(sample{ChatID: "x"})
	require.NoError(t, err)
	var out sample
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, "x", out.ChatID)
}
