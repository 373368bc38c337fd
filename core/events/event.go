package events

// Event represents a structured state change emitted by an engine. Attributes
// hold string key/value pairs so downstream consumers (indexers, RPC streams)
// can filter without decoding module-specific payloads.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose callers do not care about event streams.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Collector buffers emitted events in order. It is primarily useful in tests
// and in request handlers that want to return the events for one call.
type Collector struct {
	Events []*Event
}

// Emit implements the Emitter interface.
func (c *Collector) Emit(evt *Event) {
	if c == nil || evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}

// Reset drops all buffered events.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.Events = nil
}
