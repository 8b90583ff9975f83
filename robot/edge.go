package robot

// EdgeTrigger turns held button state into one-shot press events. It keeps the
// previous cycle's state for each monitored button and nothing older.
type EdgeTrigger struct {
	monitored []Button
	prev      map[Button]bool
	fired     map[Button]bool
}

func NewEdgeTrigger(buttons ...Button) *EdgeTrigger {
	return &EdgeTrigger{
		monitored: buttons,
		prev:      make(map[Button]bool, len(buttons)),
		fired:     make(map[Button]bool, len(buttons)),
	}
}

// Update evaluates this cycle's rising edges, then records cur as the previous
// state for every monitored button. Call it once per cycle.
func (e *EdgeTrigger) Update(cur ButtonState) {
	for _, b := range e.monitored {
		e.fired[b] = cur[b] && !e.prev[b]
		e.prev[b] = cur[b]
	}
}

// Fired reports whether b went from released to pressed on the last Update.
func (e *EdgeTrigger) Fired(b Button) bool {
	return e.fired[b]
}

// Reset forgets the previous state, so a button held at the next Update fires.
func (e *EdgeTrigger) Reset() {
	clear(e.prev)
	clear(e.fired)
}
