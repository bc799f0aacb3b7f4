// Package metrics defines the telemetry port of the simulator. Session events
// are turned into records and handed to a MetricsSink; sinks that also
// implement FailureRecorder or AdjustmentRecorder receive those records too.
// Several configured sinks are combined with NewMultiSink.
package metrics
