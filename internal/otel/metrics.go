package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the orchestrator's metric instruments: counters for
// spawned sessions, task retries, and merges, plus a kickoff-latency
// histogram, matching the spans in spans.go.
type Metrics struct {
	KickoffDuration  metric.Float64Histogram
	SessionsSpawned  metric.Int64Counter
	TaskRetries      metric.Int64Counter
	TaskFailures     metric.Int64Counter
	MergesSucceeded  metric.Int64Counter
	MergesConflicted metric.Int64Counter
	GoalsCompleted   metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.KickoffDuration, err = meter.Float64Histogram("strand.kickoff.duration",
		metric.WithDescription("internalKickoff duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionsSpawned, err = meter.Int64Counter("strand.sessions.spawned",
		metric.WithDescription("Worker sessions spawned by a kickoff"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskRetries, err = meter.Int64Counter("strand.task.retries",
		metric.WithDescription("Task retry-requeue events"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskFailures, err = meter.Int64Counter("strand.task.failures",
		metric.WithDescription("Tasks that exhausted their retry budget"),
	)
	if err != nil {
		return nil, err
	}

	m.MergesSucceeded, err = meter.Int64Counter("strand.merges.succeeded",
		metric.WithDescription("Goal branches merged cleanly"),
	)
	if err != nil {
		return nil, err
	}

	m.MergesConflicted, err = meter.Int64Counter("strand.merges.conflicted",
		metric.WithDescription("Goal branch merges that hit a conflict"),
	)
	if err != nil {
		return nil, err
	}

	m.GoalsCompleted, err = meter.Int64Counter("strand.goals.completed",
		metric.WithDescription("Goals that reached status=done"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
