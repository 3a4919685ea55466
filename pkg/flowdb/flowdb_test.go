package flowdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/reader"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

func buildEngine(t *testing.T) (*Engine, *domain.Domain) {
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

	e := New(nil, nil, nil)
	e.BindBase("clicks", 0, base.Local, d.Mailbox, nil)
	e.BindView("clicks_by_user", 0, view.Local, d.Mailbox, backlog, []int{0})
	return e, d
}

func TestWriteAssignsMonotonicTimestamps(t *testing.T) {
	e, _ := buildEngine(t)

	ack1, err := e.Write("clicks", []value.Row{{value.Int(1), value.Text("a")}}, []byte("t1"))
	require.NoError(t, err)
	ack2, err := e.Write("clicks", []value.Row{{value.Int(2), value.Text("b")}}, []byte("t2"))
	require.NoError(t, err)

	assert.Equal(t, StatusOk, ack1.Status)
	assert.Less(t, ack1.Timestamp, ack2.Timestamp)
	assert.Equal(t, []byte("t2"), ack2.Token)
}

func TestWriteUnknownBase(t *testing.T) {
	e, _ := buildEngine(t)
	_, err := e.Write("nope", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownBase)
}

func TestLookupHitAfterDomainProcesses(t *testing.T) {
	e, d := buildEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_, err := e.Write("clicks", []value.Row{{value.Int(1), value.Text("a")}}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := e.Lookup("clicks_by_user", value.Row{value.Int(1)})
		return err == nil && res.Outcome == OutcomeHit
	}, time.Second, 5*time.Millisecond)
}

func TestLookupUnknownView(t *testing.T) {
	e, _ := buildEngine(t)
	_, err := e.Lookup("nope", value.Row{value.Int(1)})
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestServiceUnavailableWhenDomainDead(t *testing.T) {
	e, _ := buildEngine(t)
	e.MarkDomainDead(0)

	_, err := e.Write("clicks", []value.Row{{value.Int(1), value.Text("a")}}, nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = e.Lookup("clicks_by_user", value.Row{value.Int(1)})
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	e.MarkDomainRecovered(0)
	_, err = e.Write("clicks", []value.Row{{value.Int(1), value.Text("a")}}, nil)
	assert.NoError(t, err)
}

func TestSubscribeDeliversWrites(t *testing.T) {
	e, d := buildEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	listener, unsub, err := e.Subscribe("clicks_by_user", 4)
	require.NoError(t, err)
	defer unsub()

	_, err = e.Write("clicks", []value.Row{{value.Int(7), value.Text("z")}}, nil)
	require.NoError(t, err)

	select {
	case row := <-listener:
		assert.Equal(t, value.Int(7), row[0])
	case <-time.After(time.Second):
		t.Fatal("subscriber never saw the write")
	}
}
