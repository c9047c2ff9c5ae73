/*
Package tracer runs the domain-parallel frame loop of one rank.

Per frame: filter the rank's primary rays (keeping those whose first hit it
owns), then loop { pick the owned instance with the most queued rays, trace
its queue through the mesh adapter, reroute the output through the
top-level index, exchange rays with peers, tick the termination voter }
until the world is quiescent, and finally gather the framebuffer.

Rays queued for peer-owned instances leave as REMOTE_RAYS requests, raising
the pending count before the send; each request is answered by exactly one
grant that lowers it. The transfer step is gated by the voter, so no rank
moves rays after entering a voting round. Requests that arrive while the
gate is closed buffer in the work queue until the round resolves.

Selection by largest queue keeps the heaviest domain moving and, with ties
broken toward lower instance ids, is deterministic across runs. A
single-rank world skips the voter entirely: the frame is done when the
local queues drain.
*/
package tracer
