// Package scanlog records per-monitor scan activity for the live console
// view. Streams are scoped to a monitor and bounded, so one run can never
// leak lines into another or grow without limit.
package scanlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxHistory bounds how many lines a monitor's stream keeps.
const maxHistory = 50

// Sink receives scan activity lines and serves back recent history.
type Sink interface {
	Append(ctx context.Context, monitorID uuid.UUID, message string) error
	Recent(ctx context.Context, monitorID uuid.UUID) ([]string, error)
}

func stamp(message string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)
}

// timeNow is swapped in tests to age streams.
var timeNow = time.Now

// MemorySink is the in-process fallback used when no redis is configured,
// and the sink handler tests run against. It mirrors the redis sink's
// expiry: streams untouched for streamTTL are dropped, so deleted monitors
// don't pin their history forever.
type MemorySink struct {
	mu      sync.Mutex
	streams map[uuid.UUID]*stream
}

type stream struct {
	lines   []string
	touched time.Time
}

func NewMemorySink() *MemorySink {
	return &MemorySink{streams: make(map[uuid.UUID]*stream)}
}

var _ Sink = (*MemorySink)(nil)

func (s *MemorySink) Append(_ context.Context, monitorID uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timeNow()
	s.expireLocked(now)
	st := s.streams[monitorID]
	if st == nil {
		st = &stream{}
		s.streams[monitorID] = st
	}
	st.lines = append(st.lines, stamp(message))
	if len(st.lines) > maxHistory {
		st.lines = st.lines[len(st.lines)-maxHistory:]
	}
	st.touched = now
	return nil
}

func (s *MemorySink) Recent(_ context.Context, monitorID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streams[monitorID]
	if st == nil {
		return nil, nil
	}
	out := make([]string, len(st.lines))
	copy(out, st.lines)
	return out, nil
}

func (s *MemorySink) expireLocked(now time.Time) {
	for id, st := range s.streams {
		if now.Sub(st.touched) >= streamTTL {
			delete(s.streams, id)
		}
	}
}
