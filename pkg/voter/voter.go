package voter

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/prismrt/prism/pkg/comm"
	"github.com/prismrt/prism/pkg/log"
	"github.com/prismrt/prism/pkg/metrics"
)

// Coordinator is the rank running the coordinator half of the protocol
const Coordinator = 0

// State is a position in the two-phase-commit state machine. Rank 0 moves
// through the coordinator states, every other rank through the cohort
// states.
type State int

const (
	// PrepareCoordinator waits for the coordinator itself to go idle
	PrepareCoordinator State = iota
	// Propose waits for all cohort votes
	Propose
	// PrepareCohort waits for a proposal from the coordinator
	PrepareCohort
	// Vote waits for the round outcome after casting a vote
	Vote
	// Terminate is the accepting state: global quiescence was agreed
	Terminate
)

// String returns the protocol name of the state
func (s State) String() string {
	switch s {
	case PrepareCoordinator:
		return "prepare_coordinator"
	case Propose:
		return "propose"
	case PrepareCohort:
		return "prepare_cohort"
	case Vote:
		return "vote"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// WorkSource reports whether this rank still has rays queued locally
type WorkSource interface {
	QueuesEmpty() bool
}

// Voter decides global quiescence: every queue empty on every rank and
// every sent ray batch acknowledged. It holds this rank's pending-ray count
// and runs one half of a blocking two-phase commit; all fields are guarded
// by a single voting lock.
type Voter struct {
	rank   int
	size   int
	comm   *comm.Communicator
	source WorkSource
	logger zerolog.Logger

	mu                   sync.Mutex
	state                State
	pending              int
	numVotesReceived     int
	commitVoteCount      int
	allVotesAvailable    bool
	commitAbortAvailable bool
	doCommit             bool
	proposeAvailable     bool
}

// New creates a voter for this rank. The communicator delivers inbound vote
// messages through HandleVote.
func New(rank, size int, c *comm.Communicator, source WorkSource) *Voter {
	v := &Voter{
		rank:   rank,
		size:   size,
		comm:   c,
		source: source,
		logger: log.WithComponent("voter").With().Int("rank", rank).Logger(),
	}
	v.resetLocked()
	return v
}

func (v *Voter) resetLocked() {
	if v.rank == Coordinator {
		v.state = PrepareCoordinator
	} else {
		v.state = PrepareCohort
	}
	v.pending = 0
	v.numVotesReceived = 0
	v.commitVoteCount = 0
	v.allVotesAvailable = false
	v.commitAbortAvailable = false
	v.doCommit = false
	v.proposeAvailable = false
}

// AddPending records rays shipped to a peer and not yet acknowledged
func (v *Voter) AddPending(n int) {
	v.mu.Lock()
	v.pending += n
	v.mu.Unlock()
}

// SubPending records an acknowledgement. A negative pending count denotes a
// protocol bug and halts the process.
func (v *Voter) SubPending(n int) {
	v.mu.Lock()
	v.pending -= n
	if v.pending < 0 {
		v.logger.Fatal().Int("pending", v.pending).Msg("pending ray count went negative")
	}
	v.mu.Unlock()
}

// Pending returns the unacknowledged ray count
func (v *Voter) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// State returns the current protocol state
func (v *Voter) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// hasWork is evaluated under the voting lock; ray queues are quiet whenever
// the state machine runs, so the queue check needs no further locking
func (v *Voter) hasWork() bool {
	return !v.source.QueuesEmpty() || v.pending > 0
}

// CommunicationAllowed gates the transfer step: once a rank has entered a
// voting round it must not ship new rays until the round resolves, or the
// coordinator could declare quiescence with rays in flight.
func (v *Voter) CommunicationAllowed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return (v.rank == Coordinator && v.state == PrepareCoordinator) ||
		(v.rank != Coordinator && v.state == PrepareCohort)
}

// HandleVote is the communicator entry point for inbound vote messages
func (v *Voter) HandleVote(msg *comm.Message) {
	vote, err := comm.DecodeVote(msg)
	if err != nil {
		v.logger.Fatal().Err(err).Msg("malformed vote")
	}
	switch vote.Kind {
	case comm.VotePropose:
		v.onPropose()
	case comm.VoteCommit:
		v.onVoteCommit()
	case comm.VoteAbort:
		v.onVoteAbort()
	case comm.VoteDoCommit:
		v.onCommit()
	case comm.VoteDoAbort:
		v.onAbort()
	default:
		v.logger.Fatal().Uint8("kind", uint8(vote.Kind)).Msg("unknown vote kind")
	}
}

func (v *Voter) onPropose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rank == Coordinator {
		v.logger.Fatal().Msg("coordinator received a proposal")
	}
	v.proposeAvailable = true
}

func (v *Voter) onVoteCommit() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requireCoordinatorLocked("vote_commit")
	v.commitVoteCount++
	v.numVotesReceived++
	if v.numVotesReceived == v.size-1 {
		v.allVotesAvailable = true
	}
}

func (v *Voter) onVoteAbort() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requireCoordinatorLocked("vote_abort")
	v.numVotesReceived++
	if v.numVotesReceived == v.size-1 {
		v.allVotesAvailable = true
	}
}

func (v *Voter) onCommit() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commitAbortAvailable = true
	v.doCommit = true
}

func (v *Voter) onAbort() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commitAbortAvailable = true
}

func (v *Voter) requireCoordinatorLocked(kind string) {
	if v.rank != Coordinator {
		v.logger.Fatal().Str("kind", kind).Msg("cohort received a coordinator vote")
	}
}

// Tick advances the state machine one step and reports whether global
// quiescence was agreed
func (v *Voter) Tick() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	old := v.state
	done := false

	switch v.state {
	case PrepareCoordinator:
		if !v.hasWork() {
			v.broadcast(comm.VotePropose)
			v.state = Propose
		}

	case Propose:
		if v.allVotesAvailable {
			if v.commitVoteCount == v.size-1 {
				v.broadcast(comm.VoteDoCommit)
				v.state = Terminate
				done = true
				metrics.VoteRounds.WithLabelValues("commit").Inc()
			} else {
				v.broadcast(comm.VoteDoAbort)
				v.state = PrepareCoordinator
				metrics.VoteRounds.WithLabelValues("abort").Inc()
			}
			// clear the whole round, not just the counters, so a
			// stale flag cannot re-enter the next round
			v.numVotesReceived = 0
			v.commitVoteCount = 0
			v.allVotesAvailable = false
		}

	case PrepareCohort:
		if v.proposeAvailable {
			v.state = Vote
			v.proposeAvailable = false
			if v.hasWork() {
				v.sendVote(comm.VoteAbort)
			} else {
				v.sendVote(comm.VoteCommit)
			}
		}

	case Vote:
		if v.commitAbortAvailable {
			if v.doCommit {
				v.state = Terminate
				done = true
			} else {
				v.state = PrepareCohort
			}
			v.commitAbortAvailable = false
			v.doCommit = false
		}

	case Terminate:
		v.resetLocked()
	}

	if old != v.state {
		v.logger.Debug().Stringer("from", old).Stringer("to", v.state).Msg("voter transition")
	}
	return done
}

func (v *Voter) broadcast(kind comm.VoteKind) {
	vote := comm.Vote{Kind: kind, Sender: int32(v.rank)}
	if err := v.comm.SendAllOther(vote.Encode()); err != nil {
		v.logger.Fatal().Err(err).Stringer("kind", kind).Msg("vote broadcast failed")
	}
}

func (v *Voter) sendVote(kind comm.VoteKind) {
	vote := comm.Vote{Kind: kind, Sender: int32(v.rank)}
	if err := v.comm.Send(vote.Encode(), Coordinator); err != nil {
		v.logger.Fatal().Err(err).Stringer("kind", kind).Msg("vote send failed")
	}
}
