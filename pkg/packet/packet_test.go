package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityOfOrdering(t *testing.T) {
	assert.Equal(t, PriorityControl, PriorityOf(Ready{}))
	assert.Equal(t, PriorityControl, PriorityOf(AddNode{}))
	assert.Equal(t, PriorityControl, PriorityOf(UpdateEgress{}))
	assert.Equal(t, PriorityControl, PriorityOf(PrepareState{}))
	assert.Equal(t, PriorityControl, PriorityOf(SetupReplayPath{}))
	assert.Equal(t, PriorityControl, PriorityOf(Captured{}))

	assert.Equal(t, PriorityReplayAck, PriorityOf(ReplayPiece{}))
	assert.Equal(t, PriorityReplayAck, PriorityOf(RequestPartialReplay{}))
	assert.Equal(t, PriorityReplayAck, PriorityOf(RequestReaderReplay{}))
	assert.Equal(t, PriorityReplayAck, PriorityOf(StartReplay{}))
	assert.Equal(t, PriorityReplayAck, PriorityOf(Finish{}))
	assert.Equal(t, PriorityReplayAck, PriorityOf(Evict{}))

	assert.Equal(t, PriorityReaderInput, PriorityOf(Input{}))
	assert.Equal(t, PriorityRegular, PriorityOf(Message{}))
	assert.Equal(t, PriorityRegular, PriorityOf(None{}))

	assert.Less(t, int(PriorityRegular), int(PriorityReaderInput))
	assert.Less(t, int(PriorityReaderInput), int(PriorityReplayAck))
	assert.Less(t, int(PriorityReplayAck), int(PriorityControl))
}

func TestKindLabelsAreStable(t *testing.T) {
	cases := map[string]Packet{
		"message":                 Message{},
		"input":                   Input{},
		"replay_piece":            ReplayPiece{},
		"request_partial_replay":  RequestPartialReplay{},
		"request_reader_replay":   RequestReaderReplay{},
		"start_replay":            StartReplay{},
		"finish":                  Finish{},
		"evict":                   Evict{},
		"ready":                   Ready{},
		"add_node":                AddNode{},
		"update_egress":           UpdateEgress{},
		"prepare_state":           PrepareState{},
		"setup_replay_path":       SetupReplayPath{},
		"captured":                Captured{},
		"none":                    None{},
	}
	for want, p := range cases {
		assert.Equal(t, want, p.Kind())
	}
}

func TestTracerFireNilSafe(t *testing.T) {
	var tr *Tracer
	assert.NotPanics(t, func() { tr.Fire("x") })

	fired := ""
	tr2 := &Tracer{Hook: func(event string) { fired = event }}
	tr2.Fire("dispatch")
	assert.Equal(t, "dispatch", fired)
}

func TestReplayContextVariants(t *testing.T) {
	var ctx ReplayContext = PartialContext{Key: []byte("k"), Ignore: true}
	pc, ok := ctx.(PartialContext)
	assert.True(t, ok)
	assert.True(t, pc.Ignore)

	ctx = RegularContext{Last: true}
	rc, ok := ctx.(RegularContext)
	assert.True(t, ok)
	assert.True(t, rc.Last)
}
