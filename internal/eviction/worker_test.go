package eviction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

func fillState(t *testing.T, n int) *state.State {
	t.Helper()
	s := state.New([][]int{{0}}, true)
	for i := 0; i < n; i++ {
		k := value.MakeKey(value.Row{value.Int(int64(i)), value.Text("xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")}, []int{0})
		s.MarkFilled(0, k)
		s.Insert(value.Row{value.Int(int64(i)), value.Text("xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")}, true)
	}
	return s
}

func TestTickNoopBelowLimit(t *testing.T) {
	w := NewWorker(1<<30, 1<<20, time.Hour, nil)
	s := fillState(t, 2)
	mailbox := domain.NewMailbox(4)
	w.Register(0, 0, s, mailbox)

	require.NoError(t, w.tick(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := mailbox.Recv(ctx)
	assert.False(t, ok, "no Evict should have been sent while under the byte limit")
}

func TestTickSendsEvictWhenOverLimit(t *testing.T) {
	w := NewWorker(1, 1<<20, time.Hour, nil)
	s := fillState(t, 50)
	mailbox := domain.NewMailbox(4)
	w.Register(0, 3, s, mailbox)

	require.NoError(t, w.tick(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, ok := mailbox.Recv(ctx)
	require.True(t, ok)
	evict, ok := p.(packet.Evict)
	require.True(t, ok)
	assert.Equal(t, packet.LocalNodeIndex(3), evict.Node)
	assert.Greater(t, evict.Bytes, int64(0))
}

func TestTickCapsBudgetAtPerRequest(t *testing.T) {
	w := NewWorker(1, 16, time.Hour, nil)
	s := fillState(t, 50)
	mailbox := domain.NewMailbox(4)
	w.Register(0, 0, s, mailbox)

	require.NoError(t, w.tick(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, ok := mailbox.Recv(ctx)
	require.True(t, ok)
	evict := p.(packet.Evict)
	assert.LessOrEqual(t, evict.Bytes, int64(16))
}

func TestPickWeightedPrefersLargerAccounts(t *testing.T) {
	w := NewWorker(0, 0, time.Hour, nil)
	small := account{node: graph.LocalNodeIndex(1), state: fillState(t, 1)}
	big := account{node: graph.LocalNodeIndex(2), state: fillState(t, 100)}

	counts := map[graph.LocalNodeIndex]int{}
	total := small.state.Bytes() + big.state.Bytes()
	for i := 0; i < 200; i++ {
		picked, ok := w.pickWeighted([]account{small, big}, total)
		require.True(t, ok)
		counts[picked.node]++
	}
	assert.Greater(t, counts[graph.LocalNodeIndex(2)], counts[graph.LocalNodeIndex(1)])
}
