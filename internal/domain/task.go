package domain

// WorkItem is an external unit of work submitted for dispatch. The kernel
// reads it for routing and hands it to the chosen agent; it never mutates it.
type WorkItem struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Text returns the free text the capability matcher scans for patterns.
func (w WorkItem) Text() string {
	if w.Description == "" {
		return w.Title
	}
	return w.Title + " " + w.Description
}

// Result is the structured outcome of one dispatch. Success reflects the
// agent's own judgement; Error is set when the call failed at the kernel
// boundary (panic, execute error, no route). AgentID, DispatchID and
// DurationMS are annotated by the dispatcher, not by agents.
type Result struct {
	Success    bool           `json:"success"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      string         `json:"error,omitempty"`
	AgentID    string         `json:"agent,omitempty"`
	DispatchID string         `json:"dispatch_id,omitempty"`
	DurationMS float64        `json:"duration_ms,omitempty"`
}
