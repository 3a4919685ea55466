package replay

import (
	"sync"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/graph"
)

// nodeLocation says which domain owns a global node, and that domain's
// runtime handle when it lives in this process (a remote domain, reached
// only through an Outbox, has D == nil).
type nodeLocation struct {
	DomainID uint32
	Local    graph.LocalNodeIndex
	D        *domain.Domain
}

// Directory maps a global node to the domain that owns it. A migration
// controller (not yet built) populates it the same way it populates each
// Domain's own DomainOf/LocalOf maps — this is the cross-domain
// counterpart of that bookkeeping, scoped to replay routing rather than
// the data plane.
type Directory struct {
	mu        sync.RWMutex
	locations map[graph.NodeIndex]nodeLocation
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{locations: make(map[graph.NodeIndex]nodeLocation)}
}

// BindLocal registers a node owned by a domain running in this process.
func (dir *Directory) BindLocal(node graph.NodeIndex, local graph.LocalNodeIndex, d *domain.Domain) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.locations[node] = nodeLocation{DomainID: d.ID, Local: local, D: d}
}

// BindRemote registers a node owned by a domain reachable only through an
// Outbox.
func (dir *Directory) BindRemote(node graph.NodeIndex, domainID uint32) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.locations[node] = nodeLocation{DomainID: domainID}
}

func (dir *Directory) lookup(node graph.NodeIndex) (nodeLocation, bool) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	loc, ok := dir.locations[node]
	return loc, ok
}
