// Package agentrole resolves abstract roles ("pm", "backend", …) to
// concrete agent ids, and implements the session-key grammar. It is
// grounded on internal/agent/registry.go's
// env-var/store-config resolution pattern, adapted from API-key
// resolution (in-memory value -> env var -> default) to role
// resolution (store override -> process-env default -> passthrough).
package agentrole

import (
	"fmt"
	"os"
	"strings"
)

// DefaultAgent is used when a task has no assignedAgent.
const DefaultAgent = "main"

// Resolver maps roles to agent ids using store-held overrides layered
// over process-env defaults, a layered-config idiom.
type Resolver struct {
	// envPrefix names the environment variable namespace, e.g.
	// "STRAND_AGENT_" so role "backend" checks STRAND_AGENT_BACKEND.
	envPrefix string
}

// NewResolver constructs a Resolver. envPrefix defaults to "STRAND_AGENT_".
func NewResolver(envPrefix string) *Resolver {
	if envPrefix == "" {
		envPrefix = "STRAND_AGENT_"
	}
	return &Resolver{envPrefix: envPrefix}
}

// ResolveAgent returns the configured agentId for roleOrAgentID.
//
// Resolution order: a store-config override (storeOverrides, keyed by
// role) wins first; then a process-env default
// (<envPrefix><ROLE-UPPERCASED>); then, if roleOrAgentID already looks
// like a concrete agentId (contains no role-only characters the caller
// cares about — in practice any non-empty string that isn't a known
// bare role is passed through), it is returned unchanged. An empty
// input resolves to DefaultAgent.
func (r *Resolver) ResolveAgent(storeOverrides map[string]string, roleOrAgentID string) string {
	if roleOrAgentID == "" {
		roleOrAgentID = DefaultAgent
	}
	if storeOverrides != nil {
		if agentID, ok := storeOverrides[roleOrAgentID]; ok && agentID != "" {
			return agentID
		}
	}
	envKey := r.envPrefix + strings.ToUpper(roleOrAgentID)
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return roleOrAgentID
}

// --- Session-key grammar ---
// agent:<agentId>:<sessionType>[:<subId>]

// SessionType enumerates the reserved session types.
type SessionType string

const (
	SessionTypeMain     SessionType = "main"
	SessionTypeWebchat  SessionType = "webchat"
	SessionTypeTelegram SessionType = "telegram"
)

// SessionKey is a parsed "agent:<agentId>:<sessionType>[:<subId>]" key.
type SessionKey struct {
	AgentID     string
	SessionType SessionType
	SubID       string
}

// String renders the session key back to its canonical grammar.
func (k SessionKey) String() string {
	if k.SubID == "" {
		return fmt.Sprintf("agent:%s:%s", k.AgentID, k.SessionType)
	}
	return fmt.Sprintf("agent:%s:%s:%s", k.AgentID, k.SessionType, k.SubID)
}

// BuildSessionKey constructs a session key string.
func BuildSessionKey(agentID string, sessionType SessionType, subID string) string {
	return SessionKey{AgentID: agentID, SessionType: sessionType, SubID: subID}.String()
}

// ParseSessionKey parses a "agent:<agentId>:<sessionType>[:<subId>]" string.
func ParseSessionKey(raw string) (SessionKey, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 || parts[0] != "agent" {
		return SessionKey{}, fmt.Errorf("agentrole: malformed session key %q", raw)
	}
	key := SessionKey{AgentID: parts[1], SessionType: SessionType(parts[2])}
	if len(parts) == 4 {
		key.SubID = parts[3]
	}
	return key, nil
}

// GoalPMSessionKey deterministically names a goal's PM session, so
// reopening a chat finds the same conversation.
func GoalPMSessionKey(agentID, goalID string) string {
	return BuildSessionKey(agentID, SessionTypeWebchat, "pm-"+goalID)
}

// StrandPMSessionKey deterministically names a strand's PM session.
func StrandPMSessionKey(agentID, strandID string) string {
	return BuildSessionKey(agentID, SessionTypeWebchat, "pm-strand-"+strandID)
}

// WorkerSessionKey mints a fresh worker session key for a task.
func WorkerSessionKey(agentID, shortTaskID string) string {
	return BuildSessionKey(agentID, SessionTypeWebchat, "task-"+shortTaskID)
}

// IsPMSession identifies a PM session iff sessionType=webchat and subId
// begins with "pm-", recognizing the legacy "subagent:pm-" compat form
// too.
func IsPMSession(raw string) bool {
	if strings.HasPrefix(raw, "subagent:pm-") {
		return true
	}
	key, err := ParseSessionKey(raw)
	if err != nil {
		return false
	}
	return key.SessionType == SessionTypeWebchat && strings.HasPrefix(key.SubID, "pm-")
}
