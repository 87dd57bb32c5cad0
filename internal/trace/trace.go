// Package trace collects debug events (DUMPBANK/DUMPDDR/tick traces) and
// checkpoints a partially-dumped run, adapted from oisee-z80-optimizer's
// pkg/result.Table (mutex-protected slice) and checkpoint.go (gob
// persistence). Debug events never affect simulator correctness; they
// exist purely for RTL co-simulation comparison (SPEC_FULL.md
// Supplemented Feature #3).
package trace

import (
	"encoding/gob"
	"io"
	"sort"
	"sync"
)

// Event is one debug trace record: a named point in program execution
// (e.g. "DUMPBANK", "TICK") plus the instruction index it occurred at.
type Event struct {
	InstrIndex int
	Kind       string
	Detail     string
}

// EventLog accumulates Events from a running simulation. Every method
// takes the mutex, so it is safe for concurrent writers; within this
// repository events are added only by Load and Conv, never from
// pkg/workerpool goroutines.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Add appends one event.
func (l *EventLog) Add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a copy of all events, ordered by instruction index then
// insertion order.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].InstrIndex < out[j].InstrIndex })
	return out
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Run is the checkpointed state of a partially-completed, possibly
// per-layer-split DDR dump, allowing a co-sim comparison run to resume
// where an earlier pass left off.
type Run struct {
	Events         []Event
	NextInstrIndex int
	LayerName      string
}

func init() {
	gob.Register(Event{})
}

// SaveRun persists a Run checkpoint.
func SaveRun(w io.Writer, run *Run) error {
	return gob.NewEncoder(w).Encode(run)
}

// LoadRun restores a Run checkpoint.
func LoadRun(r io.Reader) (*Run, error) {
	var run Run
	if err := gob.NewDecoder(r).Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}
