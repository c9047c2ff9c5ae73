/*
Package queue holds the per-instance ray queues of one rank.

Each instance id maps to a bucket with its own mutex, so adapter workers and
the communicator dispatcher can push into different instances concurrently.
The tracing loop drains buckets in bulk with TakeAll and holds no lock while
tracing. A ray lives in at most one bucket at a time on a rank.
*/
package queue
