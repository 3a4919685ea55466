package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

// fakeView implements StateView over a fixed table of node->index->key->rows,
// so join/grouped tests can control hit/hole outcomes directly.
type fakeView struct {
	hits  map[graph.NodeIndex]map[string][]value.Row
	holes map[graph.NodeIndex]bool
}

func (f *fakeView) Lookup(node graph.NodeIndex, idx int, key value.Row) state.LookupResult {
	if f.holes[node] {
		return state.LookupResult{Hole: true}
	}
	k := string(value.MakeKey(key, indicesUpTo(len(key))))
	rows := f.hits[node][k]
	return state.LookupResult{Hit: true, Rows: rows}
}

func row(id int64, name string) record.Record {
	return record.NewPositive(value.Row{value.Int(id), value.Text(name)})
}

func TestFilterDropsNonMatching(t *testing.T) {
	f := &Filter{Pred: Compare{Column: 0, Op: OpGt, Literal: value.Int(1)}}
	out := f.OnInput(0, record.Batch{row(1, "a"), row(2, "b")}, nil)
	require.Len(t, out.Records, 1)
	assert.Equal(t, value.Int(2), out.Records[0].Row[0])
}

func TestFilterAndOrNot(t *testing.T) {
	p := And{
		Compare{Column: 0, Op: OpGe, Literal: value.Int(2)},
		Or{
			Compare{Column: 1, Op: OpEq, Literal: value.Text("b")},
			Not{Inner: Compare{Column: 1, Op: OpEq, Literal: value.Text("z")}},
		},
	}
	f := &Filter{Pred: p}
	out := f.OnInput(0, record.Batch{row(1, "a"), row(2, "b"), row(3, "c")}, nil)
	assert.Len(t, out.Records, 2)
}

func TestProjectReordersAndAppendsLiterals(t *testing.T) {
	p := &Project{Columns: []int{1, 0}, Literals: []value.Value{value.Text("lit")}}
	out := p.OnInput(0, record.Batch{row(1, "a")}, nil)
	require.Len(t, out.Records, 1)
	assert.Equal(t, value.Row{value.Text("a"), value.Int(1), value.Text("lit")}, out.Records[0].Row)
}

func TestProjectResolveGeneratedColumnIsNil(t *testing.T) {
	p := &Project{Parent: 5, Columns: []int{0}, Literals: []value.Value{value.Int(9)}}
	assert.Equal(t, []Ancestor{{Node: 5, Column: 0}}, p.Resolve(0))
	assert.Nil(t, p.Resolve(1))
}

func TestIdentityPassesThrough(t *testing.T) {
	id := &Identity{Parent: 2}
	batch := record.Batch{row(1, "a")}
	out := id.OnInput(2, batch, nil)
	assert.Equal(t, batch, out.Records)
}

func TestUnionProjectsPerSourceAndIgnoresUnknownSource(t *testing.T) {
	u := &Union{Emit: map[graph.NodeIndex][]int{1: {1, 0}}}
	out := u.OnInput(1, record.Batch{row(1, "a")}, nil)
	require.Len(t, out.Records, 1)
	assert.Equal(t, value.Row{value.Text("a"), value.Int(1)}, out.Records[0].Row)

	out = u.OnInput(99, record.Batch{row(1, "a")}, nil)
	assert.Empty(t, out.Records)
}

func TestUnionResolveReturnsAllSources(t *testing.T) {
	u := &Union{Emit: map[graph.NodeIndex][]int{1: {0}, 2: {0}}}
	got := u.Resolve(0)
	assert.ElementsMatch(t, []Ancestor{{Node: 1, Column: 0}, {Node: 2, Column: 0}}, got)
}

func TestJoinInnerMatch(t *testing.T) {
	j := &Join{
		Left: 1, Right: 2,
		LeftCols: []int{0}, RightCols: []int{0},
		Emit: []JoinSide{{Node: 1, Column: 1}, {Node: 2, Column: 1}},
	}
	view := &fakeView{hits: map[graph.NodeIndex]map[string][]value.Row{
		2: {string(value.MakeKey(value.Row{value.Int(1)}, []int{0})): {{value.Int(1), value.Text("right")}}},
	}}
	out := j.OnInput(1, record.Batch{row(1, "left")}, view)
	require.Len(t, out.Records, 1)
	assert.Equal(t, value.Row{value.Text("left"), value.Text("right")}, out.Records[0].Row)
}

func TestJoinMissOnHole(t *testing.T) {
	j := &Join{Left: 1, Right: 2, LeftCols: []int{0}, RightCols: []int{0}}
	view := &fakeView{holes: map[graph.NodeIndex]bool{2: true}}
	out := j.OnInput(1, record.Batch{row(1, "left")}, view)
	require.Len(t, out.Misses, 1)
	assert.Equal(t, graph.NodeIndex(2), out.Misses[0].Node)
	assert.Empty(t, out.Records)
}

func TestJoinOuterEmitsNullOnNoMatch(t *testing.T) {
	j := &Join{
		Left: 1, Right: 2, Outer: true,
		LeftCols: []int{0}, RightCols: []int{0},
		Emit: []JoinSide{{Node: 1, Column: 1}, {Node: 2, Column: 1}},
	}
	view := &fakeView{hits: map[graph.NodeIndex]map[string][]value.Row{2: {}}}
	out := j.OnInput(1, record.Batch{row(1, "left")}, view)
	require.Len(t, out.Records, 1)
	assert.Equal(t, value.Row{value.Text("left"), value.Null}, out.Records[0].Row)
}

func TestGroupedCountFirstAndSubsequent(t *testing.T) {
	g := &Grouped{GroupCols: []int{0}, AggColumn: 1, Agg: CountAggregator{}}
	g.OnConnected(nil, 7)

	out := g.OnInput(0, record.Batch{record.NewPositive(value.Row{value.Int(1), value.Text("a")})}, nil)
	require.Len(t, out.Records, 1)
	assert.True(t, out.Records[0].IsPositive())
	assert.Equal(t, value.Int(1), out.Records[0].Row[1])

	out = g.OnInput(0, record.Batch{record.NewPositive(value.Row{value.Int(1), value.Text("b")})}, nil)
	require.Len(t, out.Records, 2)
	assert.True(t, out.Records[0].IsNegative())
	assert.True(t, out.Records[1].IsPositive())
	assert.Equal(t, value.Int(2), out.Records[1].Row[1])
}

func TestGroupedPartialMissesUnseenGroup(t *testing.T) {
	g := &Grouped{GroupCols: []int{0}, AggColumn: 1, Agg: CountAggregator{}, Partial: true}
	g.OnConnected(nil, 7)
	out := g.OnInput(0, record.Batch{record.NewPositive(value.Row{value.Int(1), value.Text("a")})}, nil)
	require.Len(t, out.Misses, 1)
	assert.Empty(t, out.Records)
}

func TestGroupedEmptyGroupEmitsNegativeAndForgets(t *testing.T) {
	g := &Grouped{GroupCols: []int{0}, AggColumn: 1, Agg: CountAggregator{}}
	g.OnConnected(nil, 7)
	g.OnInput(0, record.Batch{record.NewPositive(value.Row{value.Int(1), value.Text("a")})}, nil)

	out := g.OnInput(0, record.Batch{record.NewNegative(value.Row{value.Int(1), value.Text("a")})}, nil)
	require.Len(t, out.Records, 1)
	assert.True(t, out.Records[0].IsNegative())
	assert.Len(t, g.groups, 0)
}

func TestGroupedSumAggregator(t *testing.T) {
	g := &Grouped{GroupCols: []int{0}, AggColumn: 1, Agg: SumAggregator{Column: 1}}
	g.OnConnected(nil, 7)
	out := g.OnInput(0, record.Batch{record.NewPositive(value.Row{value.Int(1), value.Float(3.5)})}, nil)
	assert.Equal(t, value.Float(3.5), out.Records[0].Row[1])
}

func TestGroupConcatJoinsMembers(t *testing.T) {
	acc := GroupConcatAggregator{Separator: ","}.NewAccumulator()
	acc.Add(value.Row{value.Text("x")}, 0)
	acc.Add(value.Row{value.Text("y")}, 0)
	assert.Equal(t, value.Text("x,y"), acc.Value())
	require.NoError(t, acc.Remove(value.Row{value.Text("x")}, 0))
	assert.Equal(t, value.Text("y"), acc.Value())
	assert.ErrorIs(t, acc.Remove(value.Row{value.Text("nope")}, 0), errEmptyGroup)
}

func TestTopKKeepsOnlyTopKAndEmitsDiff(t *testing.T) {
	tk := &TopK{GroupCols: []int{0}, SortCol: 1, Desc: true, K: 2}
	tk.OnConnected(nil, 9)

	out := tk.OnInput(0, record.Batch{
		record.NewPositive(value.Row{value.Int(1), value.Int(10)}),
		record.NewPositive(value.Row{value.Int(1), value.Int(20)}),
		record.NewPositive(value.Row{value.Int(1), value.Int(5)}),
	}, nil)
	var positives []value.Row
	for _, r := range out.Records {
		if r.IsPositive() {
			positives = append(positives, r.Row)
		}
	}
	assert.Len(t, positives, 2, "the third (lowest) member never entered the top-2 window")

	out = tk.OnInput(0, record.Batch{
		record.NewPositive(value.Row{value.Int(1), value.Int(30)}),
	}, nil)
	var neg, pos value.Row
	for _, r := range out.Records {
		if r.IsNegative() {
			neg = r.Row
		} else {
			pos = r.Row
		}
	}
	assert.Equal(t, value.Int(10), neg[1], "inserting a new leader evicts the smallest window member")
	assert.Equal(t, value.Int(30), pos[1])
}

func TestTopKRemoveNonMemberIsDataError(t *testing.T) {
	tk := &TopK{GroupCols: []int{0}, SortCol: 1, K: 2}
	tk.OnConnected(nil, 9)
	out := tk.OnInput(0, record.Batch{record.NewNegative(value.Row{value.Int(1), value.Int(5)})}, nil)
	assert.Empty(t, out.Records)
}
