package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/pkg/value"
)

func row(id int64, name string) value.Row {
	return value.Row{value.Int(id), value.Text(name)}
}

func TestFullBacklogApplyAndSwap(t *testing.T) {
	b := New([]int{0}, false)
	b.Apply([]Record{{Row: row(1, "a"), Sign: 1}})

	rows, hole, _ := b.Lookup(value.Row{value.Int(1)})
	assert.False(t, hole, "a full backlog never reports a hole")
	assert.Empty(t, rows, "nothing published until Swap")

	b.Swap()
	rows, hole, _ = b.Lookup(value.Row{value.Int(1)})
	require.False(t, hole)
	assert.Len(t, rows, 1)
}

func TestPartialBacklogTicketReleasedOnMarkFilled(t *testing.T) {
	b := New([]int{0}, true)
	b.Swap()

	key := value.Int(1)
	_, hole, ticket := b.Lookup(value.Row{key})
	require.True(t, hole)
	require.NotNil(t, ticket)
	assert.False(t, ticket.Done())

	k := value.MakeKey(value.Row{key}, []int{0})
	b.MarkFilled(k)
	b.Swap()

	select {
	case <-waitChan(ticket):
	case <-time.After(time.Second):
		t.Fatal("ticket never released")
	}
	assert.True(t, ticket.Done())
}

func waitChan(t *MissTicket) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		t.Wait()
		close(ch)
	}()
	return ch
}

func TestSubscribeFanoutAndUnsubscribe(t *testing.T) {
	b := New([]int{0}, false)
	listener, cancel := b.Subscribe(4)

	b.Apply([]Record{{Row: row(1, "a"), Sign: 1}})

	select {
	case r := <-listener:
		assert.True(t, r.Equal(row(1, "a")))
	case <-time.After(time.Second):
		t.Fatal("listener never received fanout")
	}

	cancel()
	b.Apply([]Record{{Row: row(2, "b"), Sign: 1}})
	select {
	case <-listener:
		t.Fatal("unsubscribed listener should not receive further records")
	case <-time.After(10 * time.Millisecond):
	}
}
