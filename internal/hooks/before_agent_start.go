package hooks

import (
	"fmt"
	"strings"

	"github.com/basket/go-strand/internal/entities"
	"github.com/basket/go-strand/internal/safety"
)

// BeforeAgentStartResult carries the optional context block to prepend
// to a session's first turn.
type BeforeAgentStartResult struct {
	PrependContext string
	Inject         bool
}

// BeforeAgentStart implements the before_agent_start hook. PM
// sessions receive nothing here (they are already fully enriched by the
// cascade producers that created them); strand-bound sessions get a
// strand context block; worker sessions get a goal context block.
// Unclassified sessions fall through to classification, an external
// collaborator this package does not implement.
func (h *Hooks) BeforeAgentStart(sessionKey string) (BeforeAgentStartResult, error) {
	c := h.classify(sessionKey)

	switch c.kind {
	case kindStrandPM, kindGoalPM:
		return BeforeAgentStartResult{}, nil

	case kindStrandBound:
		strand, err := h.store.GetStrand(c.strandID)
		if err != nil {
			return BeforeAgentStartResult{}, err
		}
		goals, err := h.store.ListGoalsByStrand(c.strandID)
		if err != nil {
			return BeforeAgentStartResult{}, err
		}
		return BeforeAgentStartResult{PrependContext: renderStrandContext(strand, goals, ""), Inject: true}, nil

	case kindWorkerTask:
		goal, err := h.store.GetGoal(c.goalID)
		if err != nil {
			return BeforeAgentStartResult{}, err
		}
		h.screenGoalText(goal)
		var projectSummary string
		if goal.StrandID != "" {
			if strand, err := h.store.GetStrand(goal.StrandID); err == nil {
				goals, _ := h.store.ListGoalsByStrand(goal.StrandID)
				projectSummary = renderStrandContext(strand, goals, goal.ID)
			}
		}
		return BeforeAgentStartResult{PrependContext: projectSummary + renderGoalContext(goal, c.taskID), Inject: true}, nil

	default:
		return BeforeAgentStartResult{}, nil
	}
}

// screenGoalText runs the goal's description and each task's text through
// h.Sanitizer, replacing anything flagged ActionBlock with a redaction
// marker before it reaches renderGoalContext. goal was already cloned by
// store.GetGoal, so mutating it here never touches Store state.
func (h *Hooks) screenGoalText(goal *entities.Goal) {
	if h.Sanitizer == nil {
		return
	}
	goal.Description = h.screenText("goal.description", goal.ID, goal.Description)
	for i, t := range goal.Tasks {
		goal.Tasks[i].Text = h.screenText("task.text", t.ID, t.Text)
	}
}

// screenText checks text for prompt-injection markers, logging a warning
// for either a warn- or block-level match and substituting a redaction
// placeholder for a blocked match so it never reaches a worker's context.
func (h *Hooks) screenText(field, id, text string) string {
	result := h.Sanitizer.Check(text)
	switch result.Action {
	case safety.ActionBlock:
		h.logger.Warn("hooks: redacted text flagged as prompt injection", "field", field, "id", id, "reason", result.Reason)
		return "[content redacted: potential prompt injection]"
	case safety.ActionWarn:
		h.logger.Warn("hooks: text matched a prompt-injection warning pattern", "field", field, "id", id, "reason", result.Reason)
	}
	return text
}

// renderStrandContext lists every goal in the strand as a nested block,
// marking markedGoalID (if any) with "<- this goal".
func renderStrandContext(strand *entities.Strand, goals []*entities.Goal, markedGoalID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n", strand.Name)
	if strand.Workspace != nil && strand.Workspace.Path != "" {
		fmt.Fprintf(&b, "Workspace: %s\n", strand.Workspace.Path)
	}
	b.WriteString("\n<goals>\n")
	for _, g := range goals {
		marker := ""
		if g.ID == markedGoalID {
			marker = " <- this goal"
		}
		fmt.Fprintf(&b, "  <goal id=%q status=%q>%s%s</goal>\n", g.ID, g.Status, g.Title, marker)
	}
	b.WriteString("</goals>\n\n")
	return b.String()
}

// renderGoalContext describes a goal's tasks, marking markedTaskID with
// "<- you".
func renderGoalContext(goal *entities.Goal, markedTaskID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Goal: %s\n", goal.Title)
	if goal.Description != "" {
		fmt.Fprintf(&b, "%s\n", goal.Description)
	}
	b.WriteString("\nTasks:\n")
	for _, t := range goal.Tasks {
		marker := ""
		if t.ID == markedTaskID {
			marker = " <- you"
		}
		fmt.Fprintf(&b, "- [%s] %s%s\n", t.Status, t.Text, marker)
	}
	return b.String()
}
