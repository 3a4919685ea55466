package channel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

func TestEncodeDecodeSmallPacket(t *testing.T) {
	p := packet.Input{
		Link:  packet.Link{Dst: 3},
		Data:  record.Batch{record.NewPositive(value.Row{value.Int(1), value.Text("a")})},
		Token: []byte("tok"),
	}
	f, err := Encode(PacketID{Domain: 1, Seq: 1}, p)
	require.NoError(t, err)
	assert.Equal(t, byte(0), f.Data[0], "small payloads stay uncompressed")

	got, err := Decode(f)
	require.NoError(t, err)
	in, ok := got.(packet.Input)
	require.True(t, ok)
	assert.Equal(t, p.Link, in.Link)
	assert.Equal(t, p.Token, in.Token)
	require.Len(t, in.Data, 1)
	assert.True(t, in.Data[0].Row.Equal(p.Data[0].Row))
}

func TestEncodeCompressesLargePayload(t *testing.T) {
	big := make(record.Batch, 0, 500)
	for i := 0; i < 500; i++ {
		big = append(big, record.NewPositive(value.Row{value.Int(int64(i)), value.Text(strings.Repeat("x", 20))}))
	}
	p := packet.Message{Link: packet.Link{Dst: 1}, Data: big}

	f, err := Encode(PacketID{Domain: 1, Seq: 2}, p)
	require.NoError(t, err)
	assert.Equal(t, byte(1), f.Data[0], "a payload over compressThreshold must be flate-compressed")

	got, err := Decode(f)
	require.NoError(t, err)
	msg, ok := got.(packet.Message)
	require.True(t, ok)
	assert.Len(t, msg.Data, 500)
}
