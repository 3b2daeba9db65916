package hooks

import (
	"regexp"
	"strings"

	"github.com/basket/go-strand/internal/entities"
)

// planLogRingSize bounds the per-session ring buffer of recent plan-log
// lines kept in memory for plan.log replay.
const planLogRingSize = 200

// statusMarkerRe matches text chunks that look like a worker's status
// narration rather than ordinary prose.
var statusMarkerRe = regexp.MustCompile(`^[#✓✗]|Starting|Completed|Error:|Step `)

// Chunk is one piece of a streamed agent turn.
type Chunk struct {
	Type string // "text" | "tool_call" | "tool_result"
	Text string
	Tool string
}

// AgentStream implements the agent_stream(chunk) hook: tool
// calls/results and status-marker text lines are appended to the
// session's plan-log ring buffer, matched against the task's parsed plan
// steps when possible, and broadcast as plan.log events.
func (h *Hooks) AgentStream(sessionKey string, chunk Chunk) {
	if chunk.Type == "tool_result" {
		h.scanForLeaks(sessionKey, chunk.Text)
	}

	entry := h.renderChunk(chunk)
	if entry == "" {
		return
	}

	h.appendPlanLog(sessionKey, entry)

	c := h.classify(sessionKey)
	if c.kind != kindWorkerTask {
		return
	}

	h.publish("plan.log", map[string]any{
		"sessionKey": sessionKey,
		"goalId":     c.goalID,
		"taskId":     c.taskID,
		"entry":      entry,
	})

	h.matchPlanStep(c.goalID, c.taskID, entry)
}

// scanForLeaks runs a tool result's output through h.LeakDetector and
// warns for every match without altering the output itself; redaction
// of tool results is not this hook's job, only surfacing that it happened.
func (h *Hooks) scanForLeaks(sessionKey, text string) {
	if h.LeakDetector == nil || text == "" {
		return
	}
	for _, w := range h.LeakDetector.Scan(text) {
		h.logger.Warn("agent_stream: possible secret leak in tool output", "sessionKey", sessionKey, "pattern", w.Pattern, "sample", w.Sample)
		h.publish("plan.leak_detected", map[string]any{"sessionKey": sessionKey, "pattern": w.Pattern})
	}
}

// renderChunk decides whether chunk is worth logging and returns its
// log-line form, or "" to skip it.
func (h *Hooks) renderChunk(chunk Chunk) string {
	switch chunk.Type {
	case "tool_call":
		return "→ " + chunk.Tool
	case "tool_result":
		return "← " + chunk.Tool
	default:
		text := strings.TrimSpace(chunk.Text)
		if text == "" || !statusMarkerRe.MatchString(text) {
			return ""
		}
		return text
	}
}

func (h *Hooks) appendPlanLog(sessionKey, entry string) {
	h.planLogsMu.Lock()
	defer h.planLogsMu.Unlock()
	buf := append(h.planLogs[sessionKey], entry)
	if len(buf) > planLogRingSize {
		buf = buf[len(buf)-planLogRingSize:]
	}
	h.planLogs[sessionKey] = buf
}

// PlanLog returns a snapshot of sessionKey's recent plan-log lines.
func (h *Hooks) PlanLog(sessionKey string) []string {
	h.planLogsMu.Lock()
	defer h.planLogsMu.Unlock()
	out := make([]string, len(h.planLogs[sessionKey]))
	copy(out, h.planLogs[sessionKey])
	return out
}

// matchPlanStep looks for a plan step whose text appears in entry (a
// loose substring match is all the spec asks for) and advances it to
// in-progress/done based on the entry's own marker.
func (h *Hooks) matchPlanStep(goalID, taskID, entry string) {
	goal, err := h.store.GetGoal(goalID)
	if err != nil {
		return
	}
	task := goal.FindTask(taskID)
	if task == nil || len(task.Plan.Steps) == 0 {
		return
	}

	status := stepStatusFromEntry(entry)
	if status == "" {
		return
	}

	matchedIndex := -1
	lowerEntry := strings.ToLower(entry)
	for _, step := range task.Plan.Steps {
		if step.Text != "" && strings.Contains(lowerEntry, strings.ToLower(step.Text)) {
			matchedIndex = step.Index
			break
		}
	}
	if matchedIndex < 0 {
		return
	}

	_ = h.store.UpdateTask(goalID, taskID, func(t *entities.Task) error {
		for i := range t.Plan.Steps {
			if t.Plan.Steps[i].Index == matchedIndex {
				t.Plan.Steps[i].Status = status
				break
			}
		}
		return nil
	})
}

func stepStatusFromEntry(entry string) string {
	switch {
	case strings.HasPrefix(entry, "✓"), strings.Contains(entry, "Completed"):
		return "done"
	case strings.HasPrefix(entry, "✗"), strings.Contains(entry, "Error:"):
		return "failed"
	case strings.Contains(entry, "Starting"), strings.Contains(entry, "Step "):
		return "in-progress"
	default:
		return ""
	}
}
