/*
Package comm is the tagged message plane between ranks.

Every message carries a universal envelope {user tag, system tag, payload
size, dst, src} followed by payload bytes, all packed little-endian. System
tags split traffic into three planes: vote messages go straight to the
voter, user messages (ray transfers, framebuffers) to their registered
handlers, and system commands (QUIT) into the shutdown path. Message
classes register at process start and receive unique positive user tags;
the ray-transfer tag carries the ray schema version in its high byte.

# Transports

The Transport interface guarantees FIFO delivery per (sender, receiver)
pair and nothing across pairs. Two implementations exist:

  - DialWorld: TCP, one listener per rank plus one dialed connection per
    peer, a writer goroutine per destination. Peer loss mid-frame is fatal;
    the world is assumed up for the duration of a frame.
  - NewLoopbackWorld: buffered channels in one process, used by the test
    suite to run whole worlds deterministically.

# Dispatch

Each Communicator runs one dispatcher goroutine. Handlers execute on that
goroutine, so they must not block on the tracer; the tracer's ray handler
buffers requests and returns.
*/
package comm
