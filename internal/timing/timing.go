// Package timing implements structured per-test timing spans: a
// Procedure opens named spans (nested arbitrarily) through its test
// context, and the finished tree is surfaced through test-data as a
// "timing" blob rather than as a new signal.
package timing

import (
	"sync"
	"time"
)

// now is overridden in tests so durations are deterministic.
var now = time.Now

// Log holds the nested timing spans recorded during one invocation.
// Root is a bookkeeping stage only; its own timestamps are meaningless
// and it is never included in Snapshot's output directly.
type Log struct {
	root *Stage
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{root: &Stage{name: "root"}}
}

// StartTop starts and returns a new top-level span named name.
func (l *Log) StartTop(name string) *Stage {
	return l.root.startChild(name)
}

// Empty reports whether no spans were ever started.
func (l *Log) Empty() bool {
	l.root.mu.Lock()
	defer l.root.mu.Unlock()
	return len(l.root.children) == 0
}

// Stage is one named timing span, possibly with nested child spans
// opened while it was running.
type Stage struct {
	mu sync.Mutex
	name string
	start time.Time
	end time.Time
	finished bool
	children []*Stage
}

// StartChild starts and returns a nested span under s.
func (s *Stage) StartChild(name string) *Stage {
	return s.startChild(name)
}

func (s *Stage) startChild(name string) *Stage {
	child := &Stage{name: name, start: now()}
	s.mu.Lock()
	s.children = append(s.children, child)
	s.mu.Unlock()
	return child
}

// End marks s as finished. Calling End twice is a no-op; the first call
// wins, mirroring the exactly-once semantics the disposition recorder
// enforces for terminal dispositions.
func (s *Stage) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.end = now()
	s.finished = true
}

// Snapshot is the JSON-friendly rendering of a Stage tree, the shape
// that lands in the "timing" test-data blob.
type Snapshot struct {
	Name string `json:"name"`
	Seconds float64 `json:"seconds"`
	Children []Snapshot `json:"children,omitempty"`
}

// Snapshot renders l's full span tree. A span that was never End'd
// reports a zero duration rather than panicking or blocking.
func (l *Log) Snapshot() []Snapshot {
	return l.root.snapshotChildren()
}

func (s *Stage) snapshotChildren() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c.snapshot())
	}
	return out
}

func (s *Stage) snapshot() Snapshot {
	s.mu.Lock()
	name, start, end, finished := s.name, s.start, s.end, s.finished
	s.mu.Unlock()

	var d time.Duration
	if finished {
		d = end.Sub(start)
	}
	return Snapshot{
		Name: name,
		Seconds: d.Seconds(),
		Children: s.snapshotChildren(),
	}
}
