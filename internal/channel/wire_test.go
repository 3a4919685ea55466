package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, ^uint64(0)} {
		buf := AppendVarint(nil, v)
		rem, got, ok, err := ReadVarint(buf)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v, got)
		assert.Empty(t, rem)
	}
}

func TestReadVarintShortBuffer(t *testing.T) {
	buf := AppendVarint(nil, 300)
	_, _, ok, err := ReadVarint(buf[:1])
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{
		Header: Header{
			ID:   PacketID{Domain: 3, Seq: 42},
			Info: FrameInfo{Kind: "input"},
		},
		Data: []byte("hello world"),
	}
	buf := AppendFrame(nil, f)
	rem, got, ok, err := ParseFrame(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, rem)
	assert.Equal(t, f.Header.ID, got.Header.ID)
	assert.Equal(t, f.Header.Info.Kind, got.Header.Info.Kind)
	assert.Equal(t, uint64(len(f.Data)), got.Header.Info.Length)
	assert.Equal(t, f.Data, got.Data)
}

func TestParseFrameIncomplete(t *testing.T) {
	f := Frame{Header: Header{ID: PacketID{Domain: 1, Seq: 1}, Info: FrameInfo{Kind: "x"}}, Data: []byte("payload")}
	buf := AppendFrame(nil, f)
	_, _, ok, err := ParseFrame(buf[:len(buf)-2])
	assert.NoError(t, err)
	assert.False(t, ok, "a frame missing trailing payload bytes must not parse as complete")
}

func TestParseFrameCapsDataCapacity(t *testing.T) {
	f := Frame{Header: Header{Info: FrameInfo{Kind: "x"}}, Data: []byte("ab")}
	buf := AppendFrame(nil, f)
	buf = append(buf, 'z', 'z', 'z') // trailing bytes from a second frame
	_, got, ok, err := ParseFrame(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, cap(got.Data), "Data must not expose the next frame's bytes via append")
}
