package kernel

import (
	"sort"
	"strings"

	"slate-core/internal/domain"
)

// RouteDecision is one matcher candidate: which agent, through which
// capability, and how strong the match was.
type RouteDecision struct {
	AgentID    string  `json:"agent"`
	Capability string  `json:"capability"`
	Confidence float64 `json:"confidence"`
	Priority   int     `json:"priority"`
}

// Route picks the best agent for a work item by capability pattern overlap.
//
// For every ACTIVE or DEGRADED agent and every capability it declares,
// confidence = (patterns found as case-insensitive substrings of the item's
// title+description) / pattern count. Zero matches disqualifies the
// capability outright. Strictly higher confidence wins; on equal confidence
// the lower numeric priority wins; remaining ties keep the earlier
// registration. ok is false when nothing matches — callers must treat that
// as "no route", never substitute a default.
func (r *Registry) Route(item domain.WorkItem) (RouteDecision, bool) {
	candidates := r.Candidates(item)
	if len(candidates) == 0 {
		return RouteDecision{}, false
	}
	return candidates[0], true
}

// Candidates returns every matching (agent, capability) pair, best first.
// The first element is what Route picks; the rest feed the route-preview
// surface.
func (r *Registry) Candidates(item domain.WorkItem) []RouteDecision {
	text := strings.ToLower(item.Text())

	// Capabilities() is a hook call; snapshot the loaded instances under
	// the lock, score outside it.
	type loaded struct {
		id   string
		inst domain.Agent
	}
	r.mu.Lock()
	agents := make([]loaded, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if e.state.Loaded() && e.instance != nil {
			agents = append(agents, loaded{id: id, inst: e.instance})
		}
	}
	r.mu.Unlock()

	var out []RouteDecision
	for _, a := range agents {
		for _, c := range a.inst.Capabilities() {
			matches := 0
			for _, p := range c.Patterns {
				if p != "" && strings.Contains(text, strings.ToLower(p)) {
					matches++
				}
			}
			if matches == 0 {
				continue
			}
			n := len(c.Patterns)
			if n == 0 {
				n = 1
			}
			out = append(out, RouteDecision{
				AgentID:    a.id,
				Capability: c.Name,
				Confidence: float64(matches) / float64(n),
				Priority:   c.Priority,
			})
		}
	}

	// Stable sort: registration order breaks full ties.
	sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

func better(a, b RouteDecision) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Priority < b.Priority
}
