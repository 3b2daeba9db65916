// Package planparser turns a PM agent's markdown reply into structured
// goals and tasks. treats the parser as an external black
// box reachable only through the Parser interface; HeuristicParser is a
// concrete, swappable implementation so the core is runnable without a
// separately hosted parsing service, grounded on the line-scanning,
// collision-aware style of internal/skills/loader.go.
package planparser

import "context"

// ParsedGoal is one goal extracted from a strand-level plan.
type ParsedGoal struct {
	Title       string
	Description string
	Priority    int
	Phase       int // 0 means "no phase specified"

	// SuggestedTasks holds this goal's nested sub-bullets verbatim, if
	// any. The cascade processor folds them into the goal's description
	// under a "Suggested tasks from project plan" header rather than
	// materializing them as tasks directly.
	SuggestedTasks []string
}

// ParsedTask is one task extracted from a goal-level plan.
type ParsedTask struct {
	Text        string
	Description string
	Agent       string
	Time        string
}

// Plan is the parser's full extraction result. A detected-but-empty
// plan still reports HasPlan=true with nil slices.
type Plan struct {
	HasPlan bool
	Goals   []ParsedGoal
	Tasks   []ParsedTask
}

// Parser is the pure markdown -> {goals[], tasks[]} function the
// Cascade Processor (C6) calls. Implementations must not mutate shared
// state or block on I/O beyond the call itself.
type Parser interface {
	Parse(ctx context.Context, markdown string) (Plan, error)
}

// FileWatcher observes a task's expected plan-log file for streamed
// updates. Distinct
// from, and unrelated to, this package's markdown parsing: it watches a
// file path for changes and reports them, it does not parse content.
type FileWatcher interface {
	// Watch begins observing path and sends its contents on the returned
	// channel each time it changes, until ctx is canceled. The channel is
	// closed when watching stops for any reason.
	Watch(ctx context.Context, path string) (<-chan string, error)
}
