package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for orchestrator spans.
var (
	AttrStrandID = attribute.Key("strand.strand.id")
	AttrGoalID   = attribute.Key("strand.goal.id")
	AttrTaskID   = attribute.Key("strand.task.id")
	AttrAgentID  = attribute.Key("strand.agent.id")
	AttrBranch   = attribute.Key("strand.git.branch")
	AttrRetry    = attribute.Key("strand.task.retry_count")
)

// StartKickoffSpan wraps an internalKickoff(goalId) call.
func StartKickoffSpan(ctx context.Context, tracer trace.Tracer, goalID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "internalKickoff",
		trace.WithAttributes(AttrGoalID.String(goalID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartAgentEndSpan wraps a gateway agent_end callback for a session.
func StartAgentEndSpan(ctx context.Context, tracer trace.Tracer, goalID, taskID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent_end",
		trace.WithAttributes(AttrGoalID.String(goalID), AttrTaskID.String(taskID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartMergeSpan wraps a mergeGoalBranch call.
func StartMergeSpan(ctx context.Context, tracer trace.Tracer, goalID, branch string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mergeGoalBranch",
		trace.WithAttributes(AttrGoalID.String(goalID), AttrBranch.String(branch)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
