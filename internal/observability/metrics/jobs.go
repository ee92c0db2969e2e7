// Package metrics emits StatsD metrics for transcription job lifecycle
// transitions.
package metrics

import (
	"time"

	obserrors "github.com/audioscribe/audioscribe/internal/observability/errors"
	"github.com/audioscribe/audioscribe/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Engine     string
	Model      string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"engine":     in.Engine,
		"model":      in.Model,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSweep emits metrics for a recovery or retention sweep.
func EmitSweep(sink statsd.Sink, name string, affected int, err error) {
	if sink == nil {
		return
	}

	tags := map[string]string{"sweep": name, "result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	if affected == 0 && err == nil {
		tags["result"] = ResultNoop
	}

	sink.Count("sweep.run", 1, tags)
	if affected > 0 {
		sink.Count("sweep.jobs", int64(affected), CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
