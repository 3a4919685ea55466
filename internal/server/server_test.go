package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/flowdb"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/reader"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	g := graph.New()
	base := g.AddNode("clicks", graph.KindBase, nil)
	view := g.AddNode("clicks_by_user", graph.KindReader, nil)
	base.Local, view.Local = 0, 1
	g.AddEdge(base.Index, view.Index)
	g.Freeze()

	d := domain.New(0, g, 8)
	st := state.New([][]int{{0}}, false)
	backlog := reader.New([]int{0}, false)
	d.AddNode(&domain.NodeDescriptor{Node: base, State: st})
	d.AddNode(&domain.NodeDescriptor{Node: view, Backlog: backlog})

	engine := flowdb.New(nil, nil, nil)
	engine.BindBase("clicks", 0, base.Local, d.Mailbox, nil)
	engine.BindView("clicks_by_user", 0, view.Local, d.Mailbox, backlog, []int{0})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	srv := New(engine, nil)
	go func() { _ = srv.Serve(ctx, lis) }()

	return lis.Addr().String(), func() {
		cancel()
		_ = lis.Close()
	}
}

func TestClientWriteAndLookupRoundTrip(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ack, err := c.Write("clicks", []value.Row{{value.Int(1), value.Text("a")}}, []byte("tok"))
	require.NoError(t, err)
	assert.Equal(t, flowdb.StatusOk, ack.Status)
	assert.Equal(t, []byte("tok"), ack.Token)

	require.Eventually(t, func() bool {
		res, err := c.Lookup("clicks_by_user", value.Row{value.Int(1)})
		return err == nil && res.Outcome == flowdb.OutcomeHit
	}, time.Second, 5*time.Millisecond)
}

func TestClientWriteUnknownBase(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write("nope", nil, nil)
	require.Error(t, err, "the engine's rejection must cross the wire as an error, not a silent zero-value ack")
	assert.Contains(t, err.Error(), "unknown base")
}
