// Package progresslog keeps a chronological activity trail for one
// submission and fabricates liveness events while a long synchronous
// wait is in progress.
package progresslog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebookforge/ebookctl/pkg/domain"
)

const heartbeatInterval = 15 * time.Second

// Filler messages rotated by the heartbeat. They carry no backend
// state; they only signal that the client is still alive.
var heartbeatMessages = []string{
	"Still working, the writer is drafting your manuscript...",
	"Generation in progress. Long source texts can take a few minutes.",
	"Still working, reviewing and polishing chapters...",
	"Almost there, laying out the final PDF...",
}

// Log is an append-only, timestamped event sink. Entries are kept in
// insertion order and only removed in bulk by Clear at the start of a
// new submission.
type Log struct {
	mu       sync.Mutex
	entries  []domain.ProgressEvent
	sink     io.Writer
	interval time.Duration
	now      func() time.Time

	running bool
	stop    chan struct{}
	next    int
}

// New returns a Log that renders entries to sink. A nil sink is valid:
// entries are still recorded, nothing is rendered.
func New(sink io.Writer) *Log {
	return &Log{
		sink:     sink,
		interval: heartbeatInterval,
		now:      time.Now,
	}
}

// Append records a ProgressEvent stamped with the current wall-clock
// time and renders it as "[HH:MM:SS] message".
func (l *Log) Append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(message)
}

func (l *Log) appendLocked(message string) {
	ev := domain.ProgressEvent{Timestamp: l.now(), Message: message}
	l.entries = append(l.entries, ev)
	if l.sink != nil {
		fmt.Fprintf(l.sink, "[%s] %s\n", ev.Timestamp.Format("15:04:05"), message)
	}
}

// Clear removes all entries and resets the heartbeat rotation.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.next = 0
}

// Entries returns a copy of the recorded events in insertion order.
func (l *Log) Entries() []domain.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ProgressEvent, len(l.entries))
	copy(out, l.entries)
	return out
}

// StartHeartbeat begins emitting one filler event per interval,
// rotating through heartbeatMessages by position. Idempotent: calling
// it while running has no effect.
func (l *Log) StartHeartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	go l.beat(l.stop)
}

// HeartbeatRunning reports whether a heartbeat timer is active. A
// submission that reached a terminal state must observe false here.
func (l *Log) HeartbeatRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// StopHeartbeat cancels the timer. Idempotent and safe when not running.
func (l *Log) StopHeartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	close(l.stop)
	l.stop = nil
}

func (l *Log) beat(stop <-chan struct{}) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			// A stop/start cycle swaps l.stop; a goroutine from the
			// previous cycle may win this select against its closed stop
			// channel and must not emit against the new cycle's state.
			if !l.running || l.stop != stop {
				l.mu.Unlock()
				return
			}
			l.appendLocked(heartbeatMessages[l.next%len(heartbeatMessages)])
			l.next++
			l.mu.Unlock()
		}
	}
}
