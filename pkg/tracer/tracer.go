package tracer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prismrt/prism/pkg/accel"
	"github.com/prismrt/prism/pkg/adapter"
	"github.com/prismrt/prism/pkg/comm"
	"github.com/prismrt/prism/pkg/compositor"
	"github.com/prismrt/prism/pkg/log"
	"github.com/prismrt/prism/pkg/metrics"
	"github.com/prismrt/prism/pkg/queue"
	"github.com/prismrt/prism/pkg/rays"
	"github.com/prismrt/prism/pkg/scene"
	"github.com/prismrt/prism/pkg/voter"
)

// marchFactor is the fraction of the distance to the next instance's box
// entry that a routed ray advances: the ray stops short of the box, and so
// of any surface inside it, while staying on course to enter it
const marchFactor = 0.8

// Config wires a DomainTracer for one frame
type Config struct {
	Scene *scene.Scene
	// Rays are this rank's primary rays; rays whose first hit is owned by
	// a peer are dropped by the local filter
	Rays rays.Batch
	// Comm is nil for a standalone single-rank world
	Comm      *comm.Communicator
	FrameSeed int64
}

// queueSource adapts the queue set to the voter's work predicate
type queueSource struct {
	queues *queue.Set
}

func (q queueSource) QueuesEmpty() bool { return q.queues.Empty() }

// DomainTracer runs the domain-parallel frame loop on one rank: filter
// primaries, trace the fullest owned queue, reroute the adapter output,
// exchange rays with peers, and vote on termination until the world is
// quiescent.
type DomainTracer struct {
	rank   int
	size   int
	scn    *scene.Scene
	owners *scene.InstanceMap
	index  *accel.Index
	queues *queue.Set
	cache  *adapter.Cache
	comm   *comm.Communicator
	voter  *voter.Voter
	comp   *compositor.Compositor

	raysIn rays.Batch

	workMu sync.Mutex
	workQ  []*comm.RemoteRays

	frameID string
	logger  zerolog.Logger

	traced      atomic.Int64
	escaped     atomic.Int64
	contributed atomic.Int64
	sent        atomic.Int64
	received    atomic.Int64
}

// New builds the tracer and registers its message handlers
func New(cfg Config) *DomainTracer {
	rank, size := 0, 1
	if cfg.Comm != nil {
		rank, size = cfg.Comm.Rank(), cfg.Comm.Size()
	}
	frameID := uuid.New().String()
	t := &DomainTracer{
		rank:    rank,
		size:    size,
		scn:     cfg.Scene,
		owners:  cfg.Scene.InstanceMap(size),
		index:   accel.New(cfg.Scene.Instances),
		queues:  queue.NewSet(),
		cache:   adapter.NewCache(cfg.FrameSeed),
		comm:    cfg.Comm,
		comp:    compositor.New(cfg.Scene.Film.Width, cfg.Scene.Film.Height, size),
		raysIn:  cfg.Rays,
		frameID: frameID,
		logger: log.WithComponent("tracer").With().
			Int("rank", rank).Str("frame_id", frameID).Logger(),
	}
	if size > 1 {
		t.voter = voter.New(rank, size, cfg.Comm, queueSource{t.queues})
		cfg.Comm.HandleVote(t.voter.HandleVote)
		cfg.Comm.Handle(comm.TagRemoteRays, t.handleRemoteRays)
		cfg.Comm.Handle(comm.TagFrame, t.comp.HandleFrame)
	}
	return t
}

// Compositor exposes the frame output after Render
func (t *DomainTracer) Compositor() *compositor.Compositor {
	return t.comp
}

// Voter exposes the termination voter (nil in a single-rank world)
func (t *DomainTracer) Voter() *voter.Voter {
	return t.voter
}

// Render traces the frame to quiescence and, on rank 0, tells the world to
// shut down afterwards
func (t *DomainTracer) Render() error {
	if err := t.Trace(); err != nil {
		return err
	}
	if t.comm != nil && t.rank == voter.Coordinator {
		if err := t.comm.Quit(); err != nil {
			return fmt.Errorf("broadcasting quit: %w", err)
		}
	}
	return nil
}

// Trace runs one frame: process owned queues until the voter reports global
// quiescence, then composite
func (t *DomainTracer) Trace() error {
	timer := metrics.NewTimer()

	t.filterLocal()

	for {
		target := t.selectTarget()
		if target >= 0 {
			metrics.SelectionRounds.Inc()
			if err := t.processQueue(target); err != nil {
				return err
			}
		}
		done := t.transferRays()
		if done {
			break
		}
		if target < 0 {
			// nothing local to trace; yield while the round resolves
			runtime.Gosched()
		}
	}

	if err := t.comp.Gather(t.comm); err != nil {
		return err
	}

	timer.ObserveDuration(metrics.FrameDuration)
	t.logger.Info().
		Int64("traced", t.traced.Load()).
		Int64("escaped", t.escaped.Load()).
		Int64("contributed", t.contributed.Load()).
		Int64("sent", t.sent.Load()).
		Int64("received", t.received.Load()).
		Dur("elapsed", timer.Duration()).
		Msg("frame complete")
	return nil
}

// selectTarget picks the owned instance with the most queued rays; ties go
// to the lower instance id so every rank selects deterministically
func (t *DomainTracer) selectTarget() int {
	target, most := -1, 0
	for _, id := range t.queues.NonEmpty() {
		if t.owners.Owner(id) != t.rank {
			continue
		}
		n := t.queues.Size(id)
		if n > most || (n == most && target >= 0 && id < target) {
			target, most = id, n
		}
	}
	return target
}

// processQueue drains one instance queue through its adapter and reroutes
// the rays that came out
func (t *DomainTracer) processQueue(target int) error {
	inst := t.scn.Instances[target]
	adp, err := t.cache.Resolve(inst.Mesh)
	if err != nil {
		return err
	}

	in := t.queues.TakeAll(target)
	t.traced.Add(int64(len(in)))
	metrics.RaysTraced.Add(float64(len(in)))

	moved := make(rays.Batch, 0, len(in)*2)
	adapterTimer := metrics.NewTimer()
	adp.Trace(in, &moved, inst, t.scn.Lights)
	adapterTimer.ObserveDuration(metrics.AdapterDuration)

	t.route(moved, target, false)
	return nil
}

// filterLocal sorts this rank's primary rays into queues, dropping rays
// whose first hit belongs to a peer: every rank starts from the primaries
// it generated
func (t *DomainTracer) filterLocal() {
	t.route(t.raysIn, -1, true)
	t.raysIn = nil
}

// route is the shuffle: find each ray's next instance through the index,
// advance it marchFactor of the way to the box entry and enqueue it. Escaped shadow rays have
// reached their light and deposit their color; everything else that escapes
// is dropped. With dropRemote set, rays headed for a peer-owned instance
// are discarded instead of enqueued.
func (t *DomainTracer) route(batch rays.Batch, exclude int, dropRemote bool) {
	if len(batch) == 0 {
		return
	}
	chunk := len(batch) / (runtime.NumCPU() * 4)
	if chunk < 2 {
		chunk = 2
	}
	var g errgroup.Group
	for start := 0; start < len(batch); start += chunk {
		end := start + chunk
		if end > len(batch) {
			end = len(batch)
		}
		start, end := start, end
		g.Go(func() error {
			local := make(map[int]rays.Batch)
			for i := start; i < end; i++ {
				r := &batch[i]
				hit := t.index.NextHit(r, exclude)
				if hit.Instance < 0 {
					if r.Type == rays.Shadow {
						t.comp.Accumulate(r)
						t.contributed.Add(1)
						metrics.ShadowContributions.Inc()
					} else {
						t.escaped.Add(1)
						metrics.RaysEscaped.Inc()
					}
					continue
				}
				if dropRemote && t.owners.Owner(hit.Instance) != t.rank {
					continue
				}
				r.Advance(marchFactor * hit.TEnter)
				r.MarkVisited(hit.Instance)
				local[hit.Instance] = append(local[hit.Instance], *r)
			}
			for id, queued := range local {
				t.queues.PushMany(id, queued)
			}
			return nil
		})
	}
	g.Wait()
}
