package tracer

import (
	"strconv"

	"github.com/prismrt/prism/pkg/comm"
	"github.com/prismrt/prism/pkg/metrics"
)

// transferRays is one step of the inter-rank exchange: ship rays queued for
// peer instances, fold received batches into local queues, then advance the
// termination vote. Ray movement is gated by the voter so no rank ships new
// work after entering a voting round. Returns true once the world is
// quiescent.
func (t *DomainTracer) transferRays() bool {
	if t.size <= 1 {
		return t.queues.Empty()
	}
	if t.voter.CommunicationAllowed() {
		t.sendRays()
		t.recvRays()
	}
	return t.voter.Tick()
}

// sendRays drains every non-empty queue owned by a peer into one
// REMOTE_RAYS request per instance. The pending count rises before the send
// so quiescence can never be observed with the batch in flight.
func (t *DomainTracer) sendRays() {
	for _, instance := range t.queues.NonEmpty() {
		owner := t.owners.Owner(instance)
		if owner == t.rank {
			continue
		}
		batch := t.queues.TakeAll(instance)
		if len(batch) == 0 {
			continue
		}
		t.voter.AddPending(len(batch))

		work := comm.RemoteRays{
			TransferType: comm.Request,
			Sender:       int32(t.rank),
			Instance:     int32(instance),
			Rays:         batch,
		}
		if err := t.comm.Send(work.Encode(), owner); err != nil {
			t.logger.Fatal().Err(err).Int("dst", owner).Msg("ray transfer failed")
		}

		t.sent.Add(int64(len(batch)))
		metrics.RaysSent.WithLabelValues(strconv.Itoa(owner)).Add(float64(len(batch)))
		metrics.PendingRays.Set(float64(t.voter.Pending()))
		t.logger.Debug().
			Int("instance", instance).
			Int("dst", owner).
			Int("rays", len(batch)).
			Msg("sent remote rays")
	}
}

// recvRays folds buffered REMOTE_RAYS requests into local queues and
// answers each with a GRANT carrying the same ray count
func (t *DomainTracer) recvRays() {
	t.workMu.Lock()
	pending := t.workQ
	t.workQ = nil
	t.workMu.Unlock()

	for _, work := range pending {
		t.queues.PushMany(int(work.Instance), work.Rays)
		t.received.Add(int64(len(work.Rays)))
		metrics.RaysReceived.Add(float64(len(work.Rays)))

		grant := comm.RemoteRays{
			TransferType: comm.Grant,
			Sender:       int32(t.rank),
			Instance:     work.Instance,
			NumRays:      work.NumRays,
		}
		if err := t.comm.Send(grant.Encode(), int(work.Sender)); err != nil {
			t.logger.Fatal().Err(err).Int32("dst", work.Sender).Msg("grant failed")
		}
		t.logger.Debug().
			Int32("instance", work.Instance).
			Int32("src", work.Sender).
			Uint32("rays", work.NumRays).
			Msg("received remote rays")
	}
}

// handleRemoteRays runs on the communicator dispatcher. Grants settle the
// pending count immediately; requests are buffered until the tracer's next
// gated transfer step so a rank that already voted cannot grow its queues
// mid-round.
func (t *DomainTracer) handleRemoteRays(msg *comm.Message) {
	work, err := comm.DecodeRemoteRays(msg)
	if err != nil {
		t.logger.Fatal().Err(err).Msg("malformed ray transfer")
	}
	if work.TransferType == comm.Grant {
		t.voter.SubPending(int(work.NumRays))
		metrics.PendingRays.Set(float64(t.voter.Pending()))
		return
	}
	t.workMu.Lock()
	t.workQ = append(t.workQ, work)
	t.workMu.Unlock()
}
