package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LensGo/internal/logic/axis"
)

// StatusEvent is one message on the SSE status stream. Calibration
// progress events carry the axis and, once finished, its report.
type StatusEvent struct {
	Time   string       `json:"t"`
	Level  string       `json:"l,omitempty"`
	Kind   string       `json:"kind,omitempty"` // "calibrating", "calibrated" or "" for log lines
	Axis   string       `json:"axis,omitempty"`
	Msg    string       `json:"msg"`
	Report *axis.Report `json:"report,omitempty"`
}

// StatusBroadcaster fans status events out to SSE clients. It also acts
// as the calibration indicator of the motion controller.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of connected subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends evt to every subscriber. Slow clients miss messages
// rather than block the publisher.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = b.now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Broadcast sends a plain log line at the given level.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Level: level, Msg: msg})
}

// Calibrating announces the start of a calibration.
func (b *StatusBroadcaster) Calibrating(name string) {
	b.Publish(StatusEvent{
		Level: "info",
		Kind:  "calibrating",
		Axis:  name,
		Msg:   "Calibrating " + name,
	})
}

// Calibrated announces the outcome of a calibration.
func (b *StatusBroadcaster) Calibrated(name string, r axis.Report, err error) {
	evt := StatusEvent{
		Level:  "info",
		Kind:   "calibrated",
		Axis:   name,
		Msg:    "Calibrated " + name,
		Report: &r,
	}
	if err != nil {
		evt.Level = "error"
		evt.Msg = "Calibration of " + name + " failed: " + err.Error()
	}
	b.Publish(evt)
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.Broadcast("debug", msg)
		}
	}
	return len(p), nil
}
