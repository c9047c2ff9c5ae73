/*
Package metrics exposes Prometheus metrics for prism.

Counters cover the life of a ray (traced, escaped, contributed), the
transfer plane (sent, received, pending), and the termination protocol
(vote rounds by outcome); histograms cover frame and adapter wall time.
All metrics register at package init and are served through Handler.

# Usage

	metrics.RaysTraced.Add(float64(len(batch)))
	metrics.VoteRounds.WithLabelValues("abort").Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FrameDuration)

	http.Handle("/metrics", metrics.Handler())

Metrics are per-rank; a scrape across the world shows where rays pile up
and how many vote rounds a frame needed.
*/
package metrics
