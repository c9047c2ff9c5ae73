package voter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismrt/prism/pkg/comm"
)

// fakeSource is a settable stand-in for the tracer's queues
type fakeSource struct {
	mu    sync.Mutex
	empty bool
}

func (f *fakeSource) QueuesEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.empty
}

func (f *fakeSource) set(empty bool) {
	f.mu.Lock()
	f.empty = empty
	f.mu.Unlock()
}

// world wires voters and communicators over an in-process transport
type world struct {
	comms   []*comm.Communicator
	voters  []*Voter
	sources []*fakeSource
}

func newWorld(t *testing.T, size int) *world {
	t.Helper()
	transports := comm.NewLoopbackWorld(size)
	w := &world{}
	for rank := 0; rank < size; rank++ {
		c := comm.New(rank, size, transports[rank])
		src := &fakeSource{empty: true}
		v := New(rank, size, c, src)
		c.HandleVote(v.HandleVote)
		c.Start()
		w.comms = append(w.comms, c)
		w.voters = append(w.voters, v)
		w.sources = append(w.sources, src)
	}
	t.Cleanup(func() {
		for _, c := range w.comms {
			c.Stop()
		}
	})
	return w
}

// run ticks every voter until all report done or the timeout passes,
// returning whether the world terminated
func (w *world) run(timeout time.Duration) bool {
	var done atomic.Int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, v := range w.voters {
		wg.Add(1)
		go func(v *Voter) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if v.Tick() {
					done.Add(1)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(v)
	}

	deadline := time.After(timeout)
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-deadline:
		close(stop)
		wg.Wait()
	}
	return done.Load() == int64(len(w.voters))
}

// TestInitialStates tests the coordinator/cohort split
func TestInitialStates(t *testing.T) {
	w := newWorld(t, 3)
	assert.Equal(t, PrepareCoordinator, w.voters[0].State())
	assert.Equal(t, PrepareCohort, w.voters[1].State())
	assert.Equal(t, PrepareCohort, w.voters[2].State())
	for _, v := range w.voters {
		assert.True(t, v.CommunicationAllowed())
	}
}

// TestLivenessAllIdle tests that an idle world terminates everywhere
func TestLivenessAllIdle(t *testing.T) {
	w := newWorld(t, 3)
	assert.True(t, w.run(5*time.Second), "idle world must reach global termination")
	for rank, v := range w.voters {
		assert.Equal(t, Terminate, v.State(), "rank %d", rank)
	}
}

// TestPendingBlocksCommit tests that unacknowledged rays on any rank hold
// the world open, and that draining them releases it. The second round also
// exercises the abort path clearing all round state.
func TestPendingBlocksCommit(t *testing.T) {
	w := newWorld(t, 3)
	w.voters[1].AddPending(5)

	assert.False(t, w.run(300*time.Millisecond),
		"world must not terminate with rays in flight")

	w.voters[1].SubPending(5)
	assert.True(t, w.run(5*time.Second),
		"world must terminate once every batch is acknowledged")
}

// TestVoterAbortClearsRoundState tests that an aborted round leaves no
// stale votes behind: a full abort round runs first, then a clean commit
// round must still succeed
func TestVoterAbortClearsRoundState(t *testing.T) {
	w := newWorld(t, 2)
	w.sources[1].set(false)

	assert.False(t, w.run(300*time.Millisecond))
	// at least one full proposal round aborted with cleared counters; a
	// leaked allVotesAvailable or commit count would corrupt the round
	// that follows
	w.sources[1].set(true)
	assert.True(t, w.run(5*time.Second))
}

// TestCommunicationGating tests that a cohort stops exchanging rays once it
// has voted, until the round resolves
func TestCommunicationGating(t *testing.T) {
	w := newWorld(t, 2)
	// hold the coordinator busy so the round stays open
	w.sources[0].set(false)
	cohort := w.voters[1]

	assert.True(t, cohort.CommunicationAllowed())

	// drive the cohort into its voting state by hand
	cohort.onPropose()
	require.True(t, cohort.Tick() == false)
	require.Equal(t, Vote, cohort.State())
	assert.False(t, cohort.CommunicationAllowed(),
		"a rank that has voted must not move rays")

	// the round aborts; communication reopens
	cohort.onAbort()
	cohort.Tick()
	assert.Equal(t, PrepareCohort, cohort.State())
	assert.True(t, cohort.CommunicationAllowed())
}

// TestPendingAccounting tests the pending counter arithmetic
func TestPendingAccounting(t *testing.T) {
	w := newWorld(t, 2)
	v := w.voters[1]

	v.AddPending(3)
	v.AddPending(2)
	assert.Equal(t, 5, v.Pending())

	v.SubPending(4)
	v.SubPending(1)
	assert.Equal(t, 0, v.Pending())
}
