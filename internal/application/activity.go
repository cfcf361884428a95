package application

import (
	"context"
	"sync"

	"bankdapp/internal/streaming"
)

const defaultActivityLimit = 100

type ActivityLog struct {
	mu      sync.RWMutex
	limit   int
	entries []streaming.Message
}

func NewActivityLog(limit int) *ActivityLog {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return &ActivityLog{limit: limit}
}

// Record has the kafka.Handler shape so it can consume the feed directly.
func (l *ActivityLog) Record(_ context.Context, msg streaming.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.ID == msg.ID {
			return nil
		}
	}
	l.entries = append([]streaming.Message{msg}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	return nil
}

func (l *ActivityLog) Recent(n int) []streaming.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]streaming.Message, n)
	copy(out, l.entries[:n])
	return out
}
