package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

func TestRouterSendDeliversThroughEncodeDecodeLoopback(t *testing.T) {
	mailbox := domain.NewMailbox(4)
	r := NewRouter(nil)
	r.Register(7, mailbox)

	p := packet.Message{
		Link: packet.Link{Dst: 2},
		Data: record.Batch{record.NewPositive(value.Row{value.Int(5)})},
	}
	r.Send(7, p)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := mailbox.Recv(ctx)
	require.True(t, ok)
	msg, ok := got.(packet.Message)
	require.True(t, ok)
	assert.Equal(t, p.Link, msg.Link)
	assert.True(t, msg.Data[0].Row.Equal(p.Data[0].Row))
}

func TestRouterSendToUnregisteredDomainIsSilent(t *testing.T) {
	r := NewRouter(nil)
	assert.NotPanics(t, func() {
		r.Send(99, packet.Ready{Domain: 99})
	})
}
