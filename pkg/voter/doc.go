/*
Package voter decides when the frame is globally done.

Quiescence means every ray queue on every rank is empty and every shipped
ray batch has been acknowledged. The voter runs a blocking two-phase
commit: rank 0 proposes when it has no work, cohorts answer COMMIT or ABORT
against their own queues and pending counts, and the round either
terminates the frame everywhere or aborts and restarts.

Safety rests on the communication gate: from the moment a rank votes until
the round resolves, CommunicationAllowed is false and the tracer ships no
rays. A cohort that voted COMMIT therefore cannot generate new work during
the round, and when the coordinator observes unanimous COMMIT no ray exists
anywhere. Liveness holds because any rank that still has work votes ABORT,
which restarts the round.

All state, including the pending-ray counter, sits behind a single voting
lock. A negative pending count or a vote arriving in the wrong role denotes
a protocol bug and halts the process.
*/
package voter
