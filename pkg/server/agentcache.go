package server

import (
	"sync"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
)

// agentCache holds one live agent.Agent per session ID, so repeated
// requests against the same session reuse in-memory state (messages,
// steering queue, abort controller) instead of rebuilding it from the
// session log on every request.
type agentCache struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
}

func newAgentCache() *agentCache {
	return &agentCache{agents: make(map[string]*agent.Agent)}
}

func (c *agentCache) get(id string) (*agent.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[id]
	return a, ok
}

func (c *agentCache) put(id string, a *agent.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[id] = a
}

func (c *agentCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.agents)
}
