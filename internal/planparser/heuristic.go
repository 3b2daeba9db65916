package planparser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// HeuristicParser recognizes a conventional PM-reply shape: a "## Goals"
// or "## Tasks" markdown header followed by one bullet per entry, each
// optionally annotated with "(phase: N, priority: N)" / "(agent: x, time:
// y)". Anything not matching that shape yields HasPlan=false, matching
// the loader's "skip what doesn't parse, never panic" posture. Within
// the goals section, a bullet indented under a goal bullet is read as
// one of that goal's SuggestedTasks rather than a sibling goal.
type HeuristicParser struct{}

func NewHeuristicParser() *HeuristicParser { return &HeuristicParser{} }

var (
	goalsHeaderRe = regexp.MustCompile(`(?i)^#{1,6}\s*goals\s*$`)
	tasksHeaderRe = regexp.MustCompile(`(?i)^#{1,6}\s*tasks\s*$`)
	anyHeaderRe   = regexp.MustCompile(`^#{1,6}\s`)
	bulletRe      = regexp.MustCompile(`^[-*]\s+(.*)$`)
	metaRe        = regexp.MustCompile(`(?i)\(([^)]*)\)\s*$`)
)

// Parse implements Parser. It never returns an error for malformed input
// — an unparseable plan is reported via Plan.HasPlan, not an error,
// since "the PM wrote prose instead of a list" is an expected outcome,
// not a failure of the call itself.
func (p *HeuristicParser) Parse(_ context.Context, markdown string) (Plan, error) {
	lines := strings.Split(markdown, "\n")

	var goals []ParsedGoal
	var tasks []ParsedTask
	section := ""

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case goalsHeaderRe.MatchString(trimmed):
			section = "goals"
			continue
		case tasksHeaderRe.MatchString(trimmed):
			section = "tasks"
			continue
		case anyHeaderRe.MatchString(trimmed):
			section = ""
			continue
		}

		m := bulletRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		body := m[1]
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		switch section {
		case "goals":
			if indent > 0 && len(goals) > 0 {
				goals[len(goals)-1].SuggestedTasks = append(goals[len(goals)-1].SuggestedTasks, body)
				continue
			}
			goals = append(goals, parseGoalBullet(body))
		case "tasks":
			tasks = append(tasks, parseTaskBullet(body))
		}
	}

	hasPlan := section != "" || len(goals) > 0 || len(tasks) > 0
	if !strings.Contains(strings.ToLower(markdown), "goal") && !strings.Contains(strings.ToLower(markdown), "task") {
		hasPlan = false
	}

	return Plan{HasPlan: hasPlan, Goals: goals, Tasks: tasks}, nil
}

func splitTitleDescription(body string) (title, description string, meta map[string]string) {
	meta = map[string]string{}
	if loc := metaRe.FindStringSubmatchIndex(body); loc != nil {
		metaContent := body[loc[2]:loc[3]]
		body = strings.TrimSpace(body[:loc[0]])
		for _, pair := range strings.Split(metaContent, ",") {
			kv := strings.SplitN(pair, ":", 2)
			if len(kv) != 2 {
				continue
			}
			meta[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
		}
	}

	if idx := strings.Index(body, ":"); idx >= 0 {
		return strings.TrimSpace(body[:idx]), strings.TrimSpace(body[idx+1:]), meta
	}
	return strings.TrimSpace(body), "", meta
}

func parseGoalBullet(body string) ParsedGoal {
	title, description, meta := splitTitleDescription(body)
	g := ParsedGoal{Title: title, Description: description}
	if v, ok := meta["priority"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			g.Priority = n
		}
	}
	if v, ok := meta["phase"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			g.Phase = n
		}
	}
	return g
}

func parseTaskBullet(body string) ParsedTask {
	text, description, meta := splitTitleDescription(body)
	return ParsedTask{
		Text:        text,
		Description: description,
		Agent:       meta["agent"],
		Time:        meta["time"],
	}
}
