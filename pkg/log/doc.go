/*
Package log provides structured logging for prism using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity for production debugging.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Component and context loggers:

	tracerLog := log.WithComponent("tracer")
	tracerLog.Info().Int("rays", n).Msg("frame traced")

	rankLog := log.WithRank(2)
	rankLog.Debug().Msg("voter round aborted")

Every rank emits one structured summary line per frame; everything below Info
is intended for debugging multi-rank runs (vote rounds, transfer batches).

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at process start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Child loggers carry rank / frame_id / component fields
  - Pass context loggers to long-lived goroutines (dispatcher, workers)

Do not log in the per-ray hot path; aggregate counts and log per frame or per
transfer batch instead.
*/
package log
