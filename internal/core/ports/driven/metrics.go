package driven

import "time"

// MetricsRecorder receives operational measurements from the core.
type MetricsRecorder interface {
	// ObserveOperation records the outcome and latency of a service operation.
	ObserveOperation(op, outcome string, d time.Duration)

	// ObserveCache records a cache lookup. cache is "document" or "search".
	ObserveCache(cache string, hit bool)

	// ObserveChunks records how many chunks an ingest or update produced.
	ObserveChunks(n int)

	// ObserveEvent records a publish or consume attempt.
	ObserveEvent(topic, outcome string)
}
