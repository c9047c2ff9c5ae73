package queue

import (
	"sync"

	"github.com/prismrt/prism/pkg/rays"
)

// bucket is one instance's pending rays plus its own lock, so producers
// targeting different instances never contend
type bucket struct {
	mu   sync.Mutex
	rays rays.Batch
}

// Set maps instance ids to their pending-ray queues. Buckets are created on
// first use and only grow within a frame; a ray lives in at most one bucket
// at a time on this rank.
type Set struct {
	mu      sync.RWMutex
	buckets map[int]*bucket
}

// NewSet creates an empty queue set
func NewSet() *Set {
	return &Set{buckets: make(map[int]*bucket)}
}

func (s *Set) bucket(id int) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[id]
	s.mu.RUnlock()
	if ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[id]; !ok {
		b = &bucket{}
		s.buckets[id] = b
	}
	return b
}

// PushMany appends rays to the queue of the given instance
func (s *Set) PushMany(id int, batch rays.Batch) {
	if len(batch) == 0 {
		return
	}
	b := s.bucket(id)
	b.mu.Lock()
	b.rays = append(b.rays, batch...)
	b.mu.Unlock()
}

// TakeAll drains and returns the queue of the given instance
func (s *Set) TakeAll(id int) rays.Batch {
	s.mu.RLock()
	b, ok := s.buckets[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	b.mu.Lock()
	out := b.rays
	b.rays = nil
	b.mu.Unlock()
	return out
}

// Size returns the number of rays queued for the given instance
func (s *Set) Size(id int) int {
	s.mu.RLock()
	b, ok := s.buckets[id]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	n := len(b.rays)
	b.mu.Unlock()
	return n
}

// NonEmpty returns the ids of all instances with queued rays
func (s *Set) NonEmpty() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int
	for id, b := range s.buckets {
		b.mu.Lock()
		n := len(b.rays)
		b.mu.Unlock()
		if n > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// TotalSize returns the number of rays queued across all instances
func (s *Set) TotalSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, b := range s.buckets {
		b.mu.Lock()
		total += len(b.rays)
		b.mu.Unlock()
	}
	return total
}

// Empty reports whether no rays are queued anywhere
func (s *Set) Empty() bool {
	return s.TotalSize() == 0
}
