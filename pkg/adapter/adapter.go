package adapter

import (
	"fmt"
	"sync"

	"github.com/prismrt/prism/pkg/rays"
	"github.com/prismrt/prism/pkg/scene"
)

// Adapter is the per-mesh intersector. Trace drains the input batch: every
// ray is either terminated inside the instance or appended to out as a
// primary, secondary or shadow ray that left it. Implementations are safe
// for concurrent calls on disjoint batches.
type Adapter interface {
	Trace(in rays.Batch, out *rays.Batch, inst *scene.Instance, lights []scene.Light)
}

// Cache maps meshes to their adapters. Adapters are built on first miss and
// reused for every instance of the mesh; the read path stays cheap.
type Cache struct {
	mu        sync.RWMutex
	adapters  map[*scene.Mesh]Adapter
	frameSeed int64
}

// NewCache creates an adapter cache. The frame seed makes Russian roulette
// reproducible across runs.
func NewCache(frameSeed int64) *Cache {
	return &Cache{
		adapters:  make(map[*scene.Mesh]Adapter),
		frameSeed: frameSeed,
	}
}

// Resolve returns the adapter for a mesh, constructing it on first use
func (c *Cache) Resolve(mesh *scene.Mesh) (Adapter, error) {
	c.mu.RLock()
	a, ok := c.adapters[mesh]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok = c.adapters[mesh]; ok {
		return a, nil
	}
	built, err := NewMeshAdapter(mesh, c.frameSeed)
	if err != nil {
		return nil, fmt.Errorf("adapter for mesh %q: %w", mesh.Name, err)
	}
	c.adapters[mesh] = built
	return built, nil
}
