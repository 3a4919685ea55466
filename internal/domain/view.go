package domain

import (
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

// stateView implements ops.StateView over this domain's own node
// descriptors. A kernel's Miss.Node is always resolved through this
// same lookup path, so a node outside this domain (no local
// NodeDescriptor) always reports a Hole rather than panicking — it is
// indistinguishable, from the kernel's perspective, from a same-domain
// node whose state genuinely hasn't been filled yet; either way the
// caller's OnInput emits a Miss and the replay protocol takes over.
type stateView struct {
	d    *Domain
	desc *NodeDescriptor // the node currently running OnInput, for logging/errors only
}

func (v *stateView) Lookup(node graph.NodeIndex, idx int, key value.Row) state.LookupResult {
	local, ok := v.d.LocalOf[node]
	if !ok {
		return state.LookupResult{Hole: true}
	}
	target := v.d.Nodes[local]
	if target == nil || target.State == nil {
		return state.LookupResult{Hole: true}
	}
	k := value.MakeKey(key, identity(len(key)))
	return target.State.Lookup(idx, k)
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
