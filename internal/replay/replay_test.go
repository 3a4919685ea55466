package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/ops"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

func TestRegistryLocateAndPath(t *testing.T) {
	r := NewRegistry()
	r.Register(Path{Tag: 7, Hops: []Hop{
		{Node: 1, TriggerColumns: []int{0}},
		{Node: 2, TriggerColumns: []int{0}},
	}})

	tag, hop, ok := r.Locate(2, []int{0})
	require.True(t, ok)
	assert.Equal(t, packet.Tag(7), tag)
	assert.Equal(t, 1, hop)

	_, _, ok = r.Locate(2, []int{1})
	assert.False(t, ok)

	p, ok := r.Path(7)
	require.True(t, ok)
	assert.Len(t, p.Hops, 2)
}

// buildOneHopDomain wires a single partial base node (index 0, local 0)
// into domain d, with its one declared index matching TriggerColumns,
// and binds it into dir so resolve() can reach its state directly
// in-process (loc.D != nil).
func buildOneHopDomain(t *testing.T) (*domain.Domain, *graph.Node, *state.State, *Directory) {
	t.Helper()
	g := graph.New()
	base := g.AddNode("clicks", graph.KindBase, nil)
	reader := g.AddNode("clicks_by_user", graph.KindReader, nil)
	base.Local, base.Domain = 0, 0
	reader.Local, reader.Domain = 1, 0
	base.Indexes = [][]int{{0}}
	g.AddEdge(base.Index, reader.Index)
	g.Freeze()

	d := domain.New(0, g, 8)
	st := state.New([][]int{{0}}, true)
	d.AddNode(&domain.NodeDescriptor{Node: base, State: st})
	d.AddNode(&domain.NodeDescriptor{Node: reader})

	dir := NewDirectory()
	dir.BindLocal(base.Index, base.Local, d)
	return d, base, st, dir
}

func TestOnMissDropsWhenSourceStillHole(t *testing.T) {
	d, base, _, dir := buildOneHopDomain(t)
	reg := NewRegistry()
	reg.Register(Path{Tag: 1, Hops: []Hop{{Node: base.Index, TriggerColumns: []int{0}}}})

	m := NewManager(reg, dir, nil, nil)
	m.OnMiss(d, base.Index, ops.Miss{Node: base.Index, Columns: []int{0}, Key: value.Row{value.Int(1)}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := d.Mailbox.Recv(ctx)
	assert.False(t, ok, "a hole at the path's source must drop the miss, not emit anything")
}

func TestOnMissEmitsReplayPieceOnceFilled(t *testing.T) {
	d, base, st, dir := buildOneHopDomain(t)
	reg := NewRegistry()
	reg.Register(Path{Tag: 1, Hops: []Hop{{Node: base.Index, TriggerColumns: []int{0}}}})

	key := value.MakeKey(value.Row{value.Int(1)}, []int{0})
	st.MarkFilled(0, key)
	dropped := st.Insert(value.Row{value.Int(1), value.Text("a")}, true)
	require.False(t, dropped)

	m := NewManager(reg, dir, nil, nil)
	m.OnMiss(d, base.Index, ops.Miss{Node: base.Index, Columns: []int{0}, Key: value.Row{value.Int(1)}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, ok := d.Mailbox.Recv(ctx)
	require.True(t, ok)
	piece, ok := p.(packet.ReplayPiece)
	require.True(t, ok)
	assert.Equal(t, packet.Tag(1), piece.Tag)
	require.Len(t, piece.Data, 1)
	assert.Equal(t, value.Int(1), piece.Data[0].Row[0])
}

func TestOnMissUnregisteredPathIsNoop(t *testing.T) {
	d, base, _, dir := buildOneHopDomain(t)
	m := NewManager(NewRegistry(), dir, nil, nil)

	assert.NotPanics(t, func() {
		m.OnMiss(d, base.Index, ops.Miss{Node: base.Index, Columns: []int{0}, Key: value.Row{value.Int(1)}})
	})
}

func TestDuplicateMissForSamePendingKeyIsFolded(t *testing.T) {
	d, base, _, dir := buildOneHopDomain(t)
	reg := NewRegistry()
	reg.Register(Path{Tag: 1, Hops: []Hop{{Node: base.Index, TriggerColumns: []int{0}}}})
	m := NewManager(reg, dir, nil, nil)

	key := value.MakeKey(value.Row{value.Int(1)}, []int{0})
	m.pending[1] = map[value.Key]struct{}{key: {}}

	// request() should see the key already pending and return immediately
	// without walking resolve() a second time. A non-deduped call would
	// walk resolve(), which clears the pending entry on every outcome for
	// a single local hop, so the key still being pending afterwards shows
	// the dup branch returned early.
	m.request(1, 0, key)
	assert.Len(t, m.pending[1], 1)
}

func TestDirectoryBindLocalAndRemote(t *testing.T) {
	dir := NewDirectory()
	d := domain.New(5, nil, 1)
	dir.BindLocal(10, 2, d)
	dir.BindRemote(20, 9)

	loc, ok := dir.lookup(10)
	require.True(t, ok)
	assert.Equal(t, uint32(5), loc.DomainID)
	assert.Same(t, d, loc.D)

	loc, ok = dir.lookup(20)
	require.True(t, ok)
	assert.Nil(t, loc.D)
	assert.Equal(t, uint32(9), loc.DomainID)

	_, ok = dir.lookup(999)
	assert.False(t, ok)
}
