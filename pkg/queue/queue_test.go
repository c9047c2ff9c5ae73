package queue

import (
	"sync"
	"testing"

	"github.com/fogleman/pt/pt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismrt/prism/pkg/rays"
)

func makeBatch(ids ...int32) rays.Batch {
	batch := make(rays.Batch, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, rays.NewPrimary(id, pt.Vector{}, pt.Vector{Z: 1}, 1))
	}
	return batch
}

// TestPushTake tests the basic drain cycle
func TestPushTake(t *testing.T) {
	s := NewSet()
	s.PushMany(3, makeBatch(1, 2))
	s.PushMany(3, makeBatch(3))

	assert.Equal(t, 3, s.Size(3))
	assert.Equal(t, 3, s.TotalSize())

	got := s.TakeAll(3)
	require.Len(t, got, 3)
	assert.Equal(t, []int32{1, 2, 3}, []int32{got[0].ID, got[1].ID, got[2].ID},
		"queue preserves push order")

	assert.Zero(t, s.Size(3))
	assert.True(t, s.Empty())
}

// TestQueueIsolation tests that a ray lives in at most one queue: taking a
// bucket removes its rays, and pushes into other buckets never see them
func TestQueueIsolation(t *testing.T) {
	s := NewSet()
	s.PushMany(0, makeBatch(1))
	s.PushMany(1, makeBatch(2))

	first := s.TakeAll(0)
	require.Len(t, first, 1)
	assert.Nil(t, s.TakeAll(0), "drained bucket stays empty")
	assert.Equal(t, 1, s.TotalSize())

	second := s.TakeAll(1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.True(t, s.Empty())
}

// TestNonEmpty tests the selection scan input
func TestNonEmpty(t *testing.T) {
	s := NewSet()
	assert.Empty(t, s.NonEmpty())

	s.PushMany(5, makeBatch(1))
	s.PushMany(9, makeBatch(2, 3))
	s.TakeAll(5)

	ids := s.NonEmpty()
	require.Len(t, ids, 1)
	assert.Equal(t, 9, ids[0])
}

// TestConcurrentProducers tests that pushes from many goroutines into many
// buckets lose nothing
func TestConcurrentProducers(t *testing.T) {
	s := NewSet()
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.PushMany(p%4, makeBatch(int32(p*perProducer+i)))
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, s.TotalSize())

	seen := make(map[int32]bool)
	for _, id := range s.NonEmpty() {
		for _, r := range s.TakeAll(id) {
			assert.False(t, seen[r.ID], "ray %d appeared twice", r.ID)
			seen[r.ID] = true
		}
	}
	assert.Len(t, seen, producers*perProducer)
}
